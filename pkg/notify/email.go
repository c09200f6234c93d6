// Package notify emails reviewers through Resend when documents are waiting
// for a human decision.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/quality"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/money"
)

// Sender is satisfied by resend.Client.Emails.
type Sender interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// EmailNotifier sends one email per document to every reviewer.
type EmailNotifier struct {
	sender    Sender
	fromEmail string
	reviewers []string
	reviewURL string
	logger    *slog.Logger
}

// NewEmailNotifier builds a notifier from a Resend API key. Without a key or
// reviewers the notifier only logs.
func NewEmailNotifier(apiKey, fromEmail string, reviewers []string, reviewURL string, logger *slog.Logger) *EmailNotifier {
	var sender Sender
	if apiKey != "" {
		sender = resend.NewClient(apiKey).Emails
	}
	return NewEmailNotifierWithSender(sender, fromEmail, reviewers, reviewURL, logger)
}

func NewEmailNotifierWithSender(sender Sender, fromEmail string, reviewers []string, reviewURL string, logger *slog.Logger) *EmailNotifier {
	if fromEmail == "" {
		fromEmail = "Ingest <ingest@localhost>"
	}
	return &EmailNotifier{
		sender:    sender,
		fromEmail: fromEmail,
		reviewers: reviewers,
		reviewURL: strings.TrimRight(reviewURL, "/"),
		logger:    logger,
	}
}

func (n *EmailNotifier) ReviewReady(ctx context.Context, doc ingest.Document, checks quality.Checks) error {
	if n.sender == nil || len(n.reviewers) == 0 {
		n.logger.Warn("resend client not configured, skipping review notification",
			slog.String("document_id", doc.ID.String()))
		return nil
	}

	_, err := n.sender.Send(&resend.SendEmailRequest{
		From:    n.fromEmail,
		To:      n.reviewers,
		Subject: Subject(doc, checks),
		Html:    n.body(doc, checks),
	})
	if err != nil {
		return fmt.Errorf("failed to send review notification: %w", err)
	}
	n.logger.Info("review notification sent",
		slog.String("document_id", doc.ID.String()),
		slog.Int("recipients", len(n.reviewers)),
	)
	return nil
}

// Subject flags documents that failed the quality gate.
func Subject(doc ingest.Document, checks quality.Checks) string {
	prefix := "Revisão pendente"
	if !checks.Passed {
		prefix = "Revisão pendente (atenção)"
	}
	return fmt.Sprintf("%s: %s", prefix, doc.Name)
}

func (n *EmailNotifier) body(doc ingest.Document, checks quality.Checks) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body>")
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(doc.Name))
	fmt.Fprintf(&b, "<p>Documento <code>%s</code> aguarda revisão.</p>", doc.ID)
	fmt.Fprintf(&b, "<p>Entradas: %d (%s) &middot; Saídas: %d (%s) &middot; Sem tipo: %d</p>",
		checks.Summary.Entrada.Count, money.Display(decimal.NewFromFloat(checks.Summary.Entrada.Total), money.BRL),
		checks.Summary.Saida.Count, money.Display(decimal.NewFromFloat(checks.Summary.Saida.Total), money.BRL),
		checks.Summary.Unknown.Count,
	)
	if len(checks.Issues) > 0 {
		b.WriteString("<ul>")
		for _, issue := range checks.Issues {
			fmt.Fprintf(&b, "<li><b>%s</b>: %s</li>", html.EscapeString(issue.Rule), html.EscapeString(issue.Message))
		}
		b.WriteString("</ul>")
	}
	if n.reviewURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s/v1/documents/%s/extraction">Abrir extração</a></p>`, html.EscapeString(n.reviewURL), doc.ID)
	}
	b.WriteString("</body></html>")
	return b.String()
}
