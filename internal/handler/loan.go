// internal/handler/loan.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	val "debt-tracker/internal/validator"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"debt-tracker/internal/domain"
	"debt-tracker/internal/excel"
	"debt-tracker/internal/finance"
	"debt-tracker/internal/storage"
)

// RateFetcher is the benchmark rate lookup. It degrades instead of failing,
// so there is no error return.
type RateFetcher interface {
	CurrentRates(ctx context.Context) domain.RateQuote
}

type LoanHandler struct {
	store  storage.Store
	rates  RateFetcher
	syncer *excel.Syncer
}

func NewLoanHandler(store storage.Store, rates RateFetcher, syncer *excel.Syncer) *LoanHandler {
	return &LoanHandler{store: store, rates: rates, syncer: syncer}
}

// RegisterRoutes mounts every operation under /api/v1.
func (h *LoanHandler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/loans", h.CreateLoan)
		v1.GET("/loans", h.ListLoans)
		v1.PATCH("/loans/:id", h.UpdateLoan)
		v1.POST("/simulate", h.Simulate)
		v1.GET("/dashboard-stats", h.Dashboard)
		v1.POST("/loans/:id/history", h.CreateHistory)
		v1.GET("/loans/:id/history", h.ListHistory)
		v1.GET("/history", h.ListAllHistory)
		v1.GET("/rates/current", h.CurrentRates)
		v1.GET("/export/excel", h.ExportExcel)
		v1.POST("/import/excel", h.ImportExcel)
	}
}

// CreateLoan godoc
// @Summary Register a new loan
// @Router /api/v1/loans [post]
func (h *LoanHandler) CreateLoan(c *gin.Context) {
	var req CreateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if err := validateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loan, err := h.store.CreateLoan(c.Request.Context(), req.toDomain())
	if err != nil {
		slog.Error("Failed to create loan", "error", err, "description", req.Description)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create loan"})
		return
	}

	h.syncer.AutoSync(c.Request.Context())

	slog.Info("Loan created", "id", loan.ID, "description", loan.Description)
	c.JSON(http.StatusCreated, newLoanResponse(loan))
}

// ListLoans godoc
// @Summary List all loans with derived fields
// @Router /api/v1/loans [get]
func (h *LoanHandler) ListLoans(c *gin.Context) {
	loans, err := h.store.ListLoans(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list loans", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	responses := make([]LoanResponse, 0, len(loans))
	for _, loan := range loans {
		responses = append(responses, newLoanResponse(loan))
	}
	c.JSON(http.StatusOK, responses)
}

// UpdateLoan godoc
// @Summary Update a loan's prepayment offer and benchmark rates
// @Router /api/v1/loans/{id} [patch]
func (h *LoanHandler) UpdateLoan(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
		return
	}

	var req UpdateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if err := validateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	asOf, _ := time.Parse(domain.DateOnly, req.AsOf)
	update := domain.OfferUpdate{
		PrepaymentAmount: req.PrepaymentAmount,
		SelicRate:        req.SelicRate,
		CDIRate:          req.CDIRate,
		AsOf:             asOf,
	}

	loan, err := h.store.UpdateLoanOffer(c.Request.Context(), id, update)
	if err != nil {
		if errors.Is(err, storage.ErrLoanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Loan not found"})
			return
		}
		slog.Error("Failed to update loan", "error", err, "id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update loan"})
		return
	}

	h.syncer.AutoSync(c.Request.Context())

	slog.Info("Loan offer updated", "id", id, "remaining", loan.RemainingInstallments)
	c.JSON(http.StatusOK, newLoanResponse(*loan))
}

// Simulate godoc
// @Summary Evaluate a prepayment offer without persisting anything
// @Router /api/v1/simulate [post]
func (h *LoanHandler) Simulate(c *gin.Context) {
	var req CreateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if err := validateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, finance.Evaluate(req.toDomain()))
}

// Dashboard godoc
// @Summary Aggregate totals across all loans
// @Router /api/v1/dashboard-stats [get]
func (h *LoanHandler) Dashboard(c *gin.Context) {
	loans, err := h.store.ListLoans(c.Request.Context())
	if err != nil {
		slog.Error("Failed to load dashboard", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	var totalSavings, totalDebt float64
	for _, loan := range loans {
		remaining := float64(loan.RemainingInstallments)
		totalSavings += (loan.InstallmentAmount - loan.PrepaymentAmount) * remaining
		totalDebt += loan.InstallmentAmount * remaining
	}

	c.JSON(http.StatusOK, DashboardResponse{
		TotalPotentialSavings: totalSavings,
		TotalOutstandingDebt:  totalDebt,
		LoanCount:             len(loans),
	})
}

// CreateHistory godoc
// @Summary Record a prepayment quote for a loan
// @Router /api/v1/loans/{id}/history [post]
func (h *LoanHandler) CreateHistory(c *gin.Context) {
	loanID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
		return
	}

	var req RecordHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if err := validateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recordedAt, _ := time.Parse(domain.DateOnly, req.RecordedAt)
	entry, err := h.store.AppendHistory(c.Request.Context(), domain.HistoryEntry{
		LoanID:           loanID,
		RecordedAt:       recordedAt,
		PrepaymentAmount: req.PrepaymentAmount,
		SelicRate:        req.SelicRate,
		CDIRate:          req.CDIRate,
	})
	if err != nil {
		if errors.Is(err, storage.ErrLoanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Loan not found"})
			return
		}
		slog.Error("Failed to record history", "error", err, "loan_id", loanID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record history"})
		return
	}

	h.syncer.AutoSync(c.Request.Context())

	c.JSON(http.StatusCreated, newHistoryEntryResponse(entry))
}

// ListHistory godoc
// @Summary List a loan's prepayment history, ascending by date
// @Router /api/v1/loans/{id}/history [get]
func (h *LoanHandler) ListHistory(c *gin.Context) {
	loanID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
		return
	}

	entries, err := h.store.ListHistory(c.Request.Context(), loanID)
	if err != nil {
		if errors.Is(err, storage.ErrLoanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Loan not found"})
			return
		}
		slog.Error("Failed to list history", "error", err, "loan_id", loanID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	responses := make([]HistoryEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, newHistoryEntryResponse(entry))
	}
	c.JSON(http.StatusOK, responses)
}

// ListAllHistory godoc
// @Summary List history grouped per loan; loans without entries are omitted
// @Router /api/v1/history [get]
func (h *LoanHandler) ListAllHistory(c *gin.Context) {
	grouped, err := h.store.ListAllHistory(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list all history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	responses := make([]LoanHistoryResponse, 0, len(grouped))
	for _, lh := range grouped {
		entries := make([]HistoryEntryResponse, 0, len(lh.Entries))
		for _, entry := range lh.Entries {
			entries = append(entries, newHistoryEntryResponse(entry))
		}
		responses = append(responses, LoanHistoryResponse{
			LoanID:      lh.LoanID,
			Description: lh.Description,
			Entries:     entries,
		})
	}
	c.JSON(http.StatusOK, responses)
}

// CurrentRates godoc
// @Summary Fetch current SELIC and CDI benchmarks from BACEN
// @Router /api/v1/rates/current [get]
func (h *LoanHandler) CurrentRates(c *gin.Context) {
	// Degraded results come back with null rates; never a hard failure.
	c.JSON(http.StatusOK, h.rates.CurrentRates(c.Request.Context()))
}

// ExportExcel godoc
// @Summary Export the full data set as a spreadsheet download
// @Router /api/v1/export/excel [get]
func (h *LoanHandler) ExportExcel(c *gin.Context) {
	path, err := h.syncer.Export(c.Request.Context())
	if err != nil {
		slog.Error("Export failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export data"})
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// ImportExcel godoc
// @Summary Import loans and history from an uploaded spreadsheet
// @Router /api/v1/import/excel [post]
func (h *LoanHandler) ImportExcel(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file form field required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}
	defer file.Close()

	result, err := h.syncer.Import(c.Request.Context(), file)
	if err != nil {
		if errors.Is(err, excel.ErrInvalidWorkbook) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Import failed", "error", err,
			"loans_applied", result.LoansImported, "history_applied", result.HistoryImported)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import data"})
		return
	}

	h.syncer.AutoSync(c.Request.Context())

	slog.Info("Import finished", "loans", result.LoansImported, "history", result.HistoryImported)
	c.JSON(http.StatusOK, result)
}

// === DTO ===

type CreateLoanRequest struct {
	Description           string  `json:"description" validate:"required,notblank"`
	Creditor              string  `json:"creditor" validate:"required,notblank"`
	InstallmentAmount     float64 `json:"installment_amount" validate:"required,gt=0"`
	TotalInstallments     int     `json:"total_installments" validate:"required,gt=0"`
	RemainingInstallments int     `json:"remaining_installments" validate:"gte=0,ltefield=TotalInstallments"`
	PrepaymentAmount      float64 `json:"prepayment_amount" validate:"gte=0"`
	SelicRate             float64 `json:"selic_rate" validate:"gte=0"`
	CDIRate               float64 `json:"cdi_rate" validate:"gte=0"`
	RegisteredAt          string  `json:"registered_at" validate:"required,dateonly"`
	DueDay                int     `json:"due_day" validate:"required,gte=1,lte=31"`
}

func (r CreateLoanRequest) toDomain() domain.Loan {
	registeredAt, _ := time.Parse(domain.DateOnly, r.RegisteredAt)
	return domain.Loan{
		Description:           r.Description,
		Creditor:              r.Creditor,
		InstallmentAmount:     r.InstallmentAmount,
		TotalInstallments:     r.TotalInstallments,
		RemainingInstallments: r.RemainingInstallments,
		PrepaymentAmount:      r.PrepaymentAmount,
		SelicRate:             r.SelicRate,
		CDIRate:               r.CDIRate,
		RegisteredAt:          registeredAt,
		DueDay:                r.DueDay,
	}
}

type UpdateLoanRequest struct {
	PrepaymentAmount float64 `json:"prepayment_amount" validate:"gte=0"`
	SelicRate        float64 `json:"selic_rate" validate:"gte=0"`
	CDIRate          float64 `json:"cdi_rate" validate:"gte=0"`
	AsOf             string  `json:"as_of" validate:"required,dateonly"`
}

type RecordHistoryRequest struct {
	RecordedAt       string   `json:"recorded_at" validate:"required,dateonly"`
	PrepaymentAmount float64  `json:"prepayment_amount" validate:"gte=0"`
	SelicRate        *float64 `json:"selic_rate" validate:"omitempty,gte=0"`
	CDIRate          *float64 `json:"cdi_rate" validate:"omitempty,gte=0"`
}

type LoanResponse struct {
	domain.Loan
	RegisteredAt string `json:"registered_at"`
	finance.Evaluation
}

func newLoanResponse(loan domain.Loan) LoanResponse {
	return LoanResponse{
		Loan:         loan,
		RegisteredAt: loan.RegisteredAt.Format(domain.DateOnly),
		Evaluation:   finance.Evaluate(loan),
	}
}

type HistoryEntryResponse struct {
	domain.HistoryEntry
	RecordedAt string `json:"recorded_at"`
}

func newHistoryEntryResponse(entry domain.HistoryEntry) HistoryEntryResponse {
	return HistoryEntryResponse{
		HistoryEntry: entry,
		RecordedAt:   entry.RecordedAt.Format(domain.DateOnly),
	}
}

type LoanHistoryResponse struct {
	LoanID      int64                  `json:"loan_id"`
	Description string                 `json:"description"`
	Entries     []HistoryEntryResponse `json:"entries"`
}

type DashboardResponse struct {
	TotalPotentialSavings float64 `json:"total_potential_savings"`
	TotalOutstandingDebt  float64 `json:"total_outstanding_debt"`
	LoanCount             int     `json:"loan_count"`
}

func validateStruct(v any) error {
	if err := val.Validate.Struct(v); err != nil {
		var errs []string
		for _, e := range err.(validator.ValidationErrors) {
			errs = append(errs, fieldErrorToString(e))
		}
		return fmt.Errorf("invalid input: %s", strings.Join(errs, "; "))
	}
	return nil
}

func fieldErrorToString(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "dateonly":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format", e.Field())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", e.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", e.Field(), e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
	case "ltefield":
		return fmt.Sprintf("%s must not exceed %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s is invalid", e.Field())
	}
}
