// internal/handler/loan_test.go
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debt-tracker/internal/domain"
	"debt-tracker/internal/excel"
	"debt-tracker/internal/storage/memory"
)

type stubRates struct {
	quote domain.RateQuote
}

func (s stubRates) CurrentRates(context.Context) domain.RateQuote {
	return s.quote
}

func newTestRouter(t *testing.T) (*gin.Engine, *memory.Storage) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStorage()
	syncer := excel.NewSyncer(store, filepath.Join(t.TempDir(), "loans_backup.xlsx"))

	selic, cdi := 10.5, 9.8
	h := NewLoanHandler(store, stubRates{domain.RateQuote{
		Selic:     &selic,
		CDI:       &cdi,
		FetchedAt: time.Now(),
	}}, syncer)

	router := gin.New()
	h.RegisterRoutes(router)
	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createLoanBody() map[string]any {
	return map[string]any{
		"description":            "Financiamento carro",
		"creditor":               "Banco A",
		"installment_amount":     1000.0,
		"total_installments":     12,
		"remaining_installments": 12,
		"prepayment_amount":      950.0,
		"selic_rate":             10.5,
		"cdi_rate":               10.5,
		"registered_at":          "2024-01-10",
		"due_day":                10,
	}
}

func TestCreateLoan(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/loans", createLoanBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["id"])
	assert.Equal(t, "2024-01-10", resp["registered_at"])
	assert.InDelta(t, 5.263157894736842, resp["discount_monthly_percent"].(float64), 1e-9)
	assert.InDelta(t, 0.91875, resp["cdb_monthly_return"].(float64), 1e-9)
	assert.Equal(t, "prepay", resp["recommendation"])
	assert.InDelta(t, 600.0, resp["total_potential_savings"].(float64), 1e-9)
}

func TestCreateLoanValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing description", func(b map[string]any) { delete(b, "description") }},
		{"blank creditor", func(b map[string]any) { b["creditor"] = "   " }},
		{"zero installment amount", func(b map[string]any) { b["installment_amount"] = 0 }},
		{"remaining above total", func(b map[string]any) { b["remaining_installments"] = 13 }},
		{"bad date", func(b map[string]any) { b["registered_at"] = "10/01/2024" }},
		{"due day out of range", func(b map[string]any) { b["due_day"] = 32 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := createLoanBody()
			tt.mutate(body)
			w := doJSON(t, router, http.MethodPost, "/api/v1/loans", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestUpdateLoan(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/loans", createLoanBody())
	require.Equal(t, http.StatusCreated, w.Code)

	update := map[string]any{
		"prepayment_amount": 900.0,
		"selic_rate":        11.0,
		"cdi_rate":          10.0,
		"as_of":             "2024-03-10",
	}

	w = doJSON(t, router, http.MethodPatch, "/api/v1/loans/1", update)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 9, resp["remaining_installments"])
	assert.InDelta(t, 900.0, resp["prepayment_amount"].(float64), 1e-9)

	// Same as-of, same values: same projection.
	w = doJSON(t, router, http.MethodPatch, "/api/v1/loans/1", update)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 9, resp["remaining_installments"])
}

func TestUpdateLoanNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPatch, "/api/v1/loans/99", map[string]any{
		"prepayment_amount": 900.0,
		"as_of":             "2024-03-10",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSimulateDoesNotPersist(t *testing.T) {
	router, store := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/simulate", createLoanBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "prepay", resp["recommendation"])
	assert.InDelta(t, 11400.0, resp["payoff_amount"].(float64), 1e-9)

	loans, err := store.ListLoans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loans)
}

func TestDashboardTotals(t *testing.T) {
	router, _ := newTestRouter(t)

	// Three hand-built loans.
	seed := []struct {
		installment, prepayment float64
		remaining               int
	}{
		{1000, 950, 10},
		{500, 400, 4},
		{200, 0, 6},
	}
	for i, s := range seed {
		body := createLoanBody()
		body["description"] = fmt.Sprintf("loan %d", i+1)
		body["installment_amount"] = s.installment
		body["prepayment_amount"] = s.prepayment
		body["total_installments"] = 24
		body["remaining_installments"] = s.remaining
		w := doJSON(t, router, http.MethodPost, "/api/v1/loans", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/dashboard-stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp DashboardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// (1000-950)*10 + (500-400)*4 + (200-0)*6 = 500 + 400 + 1200
	assert.InDelta(t, 2100.0, resp.TotalPotentialSavings, 1e-9)
	// 1000*10 + 500*4 + 200*6 = 10000 + 2000 + 1200
	assert.InDelta(t, 13200.0, resp.TotalOutstandingDebt, 1e-9)
	assert.Equal(t, 3, resp.LoanCount)
}

func TestHistoryEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/loans", createLoanBody())
	require.Equal(t, http.StatusCreated, w.Code)

	for _, day := range []string{"2024-02-15", "2024-02-01"} {
		w = doJSON(t, router, http.MethodPost, "/api/v1/loans/1/history", map[string]any{
			"recorded_at":       day,
			"prepayment_amount": 940.0,
			"selic_rate":        10.5,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/loans/1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-02-01", entries[0]["recorded_at"])
	assert.Equal(t, "2024-02-15", entries[1]["recorded_at"])
	assert.Nil(t, entries[0]["cdi_rate"], "absent rate must stay null, not zero")

	w = doJSON(t, router, http.MethodGet, "/api/v1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var grouped []LoanHistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &grouped))
	require.Len(t, grouped, 1)
	assert.EqualValues(t, 1, grouped[0].LoanID)
	assert.Len(t, grouped[0].Entries, 2)
}

func TestHistoryNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/loans/7/history", map[string]any{
		"recorded_at":       "2024-02-01",
		"prepayment_amount": 940.0,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/loans/7/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCurrentRates(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/rates/current", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 10.5, resp["selic"].(float64), 1e-9)
	assert.InDelta(t, 9.8, resp["cdi"].(float64), 1e-9)
	assert.NotEmpty(t, resp["fetched_at"])
}

func TestExportImportEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/loans", createLoanBody())
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/export/excel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	require.NotEmpty(t, w.Body.Bytes())

	// Upload the export into a fresh instance.
	freshRouter, freshStore := newTestRouter(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "loans_backup.xlsx")
	require.NoError(t, err)
	_, err = part.Write(w.Body.Bytes())
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import/excel", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	freshRouter.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result excel.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.LoansImported)

	loans, err := freshStore.ListLoans(context.Background())
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, "Financiamento carro", loans[0].Description)
}

func TestImportRejectsGarbage(t *testing.T) {
	router, _ := newTestRouter(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "junk.xlsx")
	require.NoError(t, err)
	_, err = part.Write([]byte("this is not a workbook"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import/excel", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
