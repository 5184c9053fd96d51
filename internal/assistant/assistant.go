// Package assistant answers conversational questions about spending. It
// pulls relevant aggregates out of the receipt store, folds them into the
// prompt as context, and makes a single text-generation call.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karthikv/expense-scanner/internal/receipt"
	"github.com/karthikv/expense-scanner/internal/scanning"
)

const recentReceiptLimit = 10

// Source is the slice of the receipt service the assistant reads from.
type Source interface {
	ListReceipts(ctx context.Context, filter receipt.Filter) ([]*receipt.Receipt, error)
	Summary(ctx context.Context) (*receipt.Summary, error)
}

// generator produces one text completion for a prompt.
type generator interface {
	generate(ctx context.Context, prompt string) (string, error)
	close() error
}

// Assistant builds expense context and asks the model for a reply.
type Assistant struct {
	source Source
	gen    generator
}

// New creates an Assistant backed by Gemini.
func New(apiKey, modelName string, source Source) (*Assistant, error) {
	gen, err := newGeminiGenerator(apiKey, modelName)
	if err != nil {
		return nil, err
	}
	return &Assistant{source: source, gen: gen}, nil
}

func newWithGenerator(source Source, gen generator) *Assistant {
	return &Assistant{source: source, gen: gen}
}

// Reply answers one user message.
func (a *Assistant) Reply(ctx context.Context, message string) (string, error) {
	prompt := systemPrompt(time.Now()) + a.buildExpenseContext(ctx, message) +
		"\n\nUser question: " + strings.TrimSpace(message)
	return a.gen.generate(ctx, prompt)
}

// Close releases the model client.
func (a *Assistant) Close() error {
	return a.gen.close()
}

func systemPrompt(now time.Time) string {
	return fmt.Sprintf(`You are an intelligent expense assistant for a receipt scanner app. You help users:

1. Answer expense questions - query their spending data and provide insights
2. Receipt help - guide them on how to use the app features
3. General conversation - be friendly and helpful

When answering expense questions, use the expense data context below to give accurate, specific answers.

Response style:
- Be concise but friendly
- Format currency as $X.XX
- When listing expenses, use bullet points
- If asked about data you don't have, say so honestly

Current date: %s`, now.Format("Monday, January 2, 2006"))
}

// buildExpenseContext selects the aggregates the question seems to be
// about. Keyword matching is crude but keeps the prompt small; the model
// does the rest. Failures degrade to an empty context rather than failing
// the chat.
func (a *Assistant) buildExpenseContext(ctx context.Context, message string) string {
	lower := strings.ToLower(message)

	summary, err := a.source.Summary(ctx)
	if err != nil {
		slog.Warn("failed to build expense summary for assistant", "error", err)
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n---\nEXPENSE DATA CONTEXT:\n")
	fmt.Fprintf(&b, "Total recorded expenses: $%.2f across %d receipts\n", summary.Total, summary.Count)

	if strings.Contains(lower, "month") || strings.Contains(lower, "mtd") {
		fmt.Fprintf(&b, "Month-to-date spending: $%.2f\n", summary.MonthToDate)
	}
	if strings.Contains(lower, "year") || strings.Contains(lower, "ytd") {
		fmt.Fprintf(&b, "Year-to-date spending: $%.2f\n", summary.YearToDate)
	}

	for _, category := range scanning.Categories {
		if strings.Contains(lower, strings.ToLower(category)) {
			fmt.Fprintf(&b, "Spending in %s: $%.2f\n", category, summary.ByCategory[category])
		}
	}
	for account, total := range summary.ByAccount {
		if account != "" && strings.Contains(lower, strings.ToLower(account)) {
			fmt.Fprintf(&b, "Spending on account %s: $%.2f\n", account, total)
		}
	}

	receipts, err := a.source.ListReceipts(ctx, receipt.Filter{Limit: recentReceiptLimit})
	if err != nil {
		slog.Warn("failed to list recent receipts for assistant", "error", err)
		return b.String()
	}
	if len(receipts) > 0 {
		b.WriteString("Most recent receipts:\n")
		for _, r := range receipts {
			date := "unknown date"
			if r.Date != nil {
				date = r.Date.Format("2006-01-02")
			}
			fmt.Fprintf(&b, "- %s: %s $%.2f (%s, %s)\n", date, r.Merchant, r.Amount, r.Category, r.Account)
		}
	}

	return b.String()
}
