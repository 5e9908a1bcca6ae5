// cmd/bot/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"debt-tracker/internal/bacen"
	"debt-tracker/internal/config"
	"debt-tracker/internal/finance"
	"debt-tracker/internal/storage/postgres"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/text/encoding/charmap"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		slog.Error("TELEGRAM_BOT_TOKEN not set")
		os.Exit(1)
	}

	cfg := config.MustLoad()
	pool, err := pgxpool.New(context.Background(), cfg.DBConn)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := postgres.NewStorage(pool)
	rates := bacen.NewClient(cfg.BacenBaseURL, cfg.BacenTimeout)

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		slog.Error("Failed to start Telegram bot", "error", err)
		os.Exit(1)
	}

	slog.Info("Bot started", "username", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		chatID := update.Message.Chat.ID
		text := strings.TrimSpace(fixEncoding(update.Message.Text))
		slog.Info("📥 Message received", "chat_id", chatID, "text", text)

		var msgText string
		var errHandle error

		switch {
		case text == "/start" || text == "/help":
			msgText = "💸 *Loan prepayment tracker*\n\n" +
				"Commands:\n" +
				"`/loans` — list loans with the current recommendation\n" +
				"`/dashboard` — total savings, outstanding debt, loan count\n" +
				"`/rates` — current SELIC and CDI from BACEN"

		case text == "/loans":
			msgText, errHandle = handleLoans(store)

		case text == "/dashboard":
			msgText, errHandle = handleDashboard(store)

		case text == "/rates":
			msgText = handleRates(rates)

		default:
			msgText = "Unknown command. Send /help"
		}

		if errHandle != nil {
			msgText = "❌ Error: " + errHandle.Error()
		}

		msg := tgbotapi.NewMessage(chatID, msgText)
		msg.ParseMode = "Markdown"
		if _, err := bot.Send(msg); err != nil {
			slog.Error("Failed to send reply", "chat_id", chatID, "error", err)
		}
	}
}

func handleLoans(store *postgres.Storage) (string, error) {
	loans, err := store.ListLoans(context.Background())
	if err != nil {
		return "", err
	}
	if len(loans) == 0 {
		return "📭 No loans registered yet", nil
	}

	var lines []string
	lines = append(lines, "💸 *Loans*")
	for _, loan := range loans {
		eval := finance.Evaluate(loan)
		lines = append(lines, fmt.Sprintf("\n*%s* (%s)", loan.Description, loan.Creditor))
		lines = append(lines, fmt.Sprintf("- installment: %.2f, offer: %.2f", loan.InstallmentAmount, loan.PrepaymentAmount))
		lines = append(lines, fmt.Sprintf("- remaining: %d of %d", loan.RemainingInstallments, loan.TotalInstallments))
		lines = append(lines, fmt.Sprintf("- discount %.2f%%/mo vs CDB %.2f%%/mo → *%s*",
			eval.DiscountMonthlyPercent, eval.CDBMonthlyReturn, eval.Recommendation))
	}
	return strings.Join(lines, "\n"), nil
}

func handleDashboard(store *postgres.Storage) (string, error) {
	loans, err := store.ListLoans(context.Background())
	if err != nil {
		return "", err
	}

	var totalSavings, totalDebt float64
	for _, loan := range loans {
		remaining := float64(loan.RemainingInstallments)
		totalSavings += (loan.InstallmentAmount - loan.PrepaymentAmount) * remaining
		totalDebt += loan.InstallmentAmount * remaining
	}

	return fmt.Sprintf("📊 *Dashboard*\n- potential savings: %.2f\n- outstanding debt: %.2f\n- loans: %d",
		totalSavings, totalDebt, len(loans)), nil
}

func handleRates(rates *bacen.Client) string {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	quote := rates.CurrentRates(ctx)

	format := func(rate *float64) string {
		if rate == nil {
			return "unavailable"
		}
		return fmt.Sprintf("%.2f%% p.a.", *rate)
	}
	return fmt.Sprintf("🏦 *BACEN rates*\n- SELIC: %s\n- CDI: %s\n- fetched: %s",
		format(quote.Selic), format(quote.CDI), quote.FetchedAt.Format("2006-01-02 15:04:05"))
}

func fixEncoding(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	// Telegram clients occasionally deliver Windows-1252 bytes.
	decoder := charmap.Windows1252.NewDecoder()
	fixed, err := decoder.String(s)
	if err == nil && utf8.ValidString(fixed) {
		return fixed
	}

	return strings.ToValidUTF8(s, "")
}
