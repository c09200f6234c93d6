package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/review"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/service"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/money"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply ingestion store and ledger migrations",
		Run: func(cmd *cobra.Command, args []string) {
			// InitDependencies migrates both stores on the way up.
			run(func(ctx context.Context, d *Dependencies) error {
				if jsonOutput {
					printJSON(map[string]interface{}{"ok": true})
				} else {
					fmt.Println("migrations applied")
				}
				return nil
			})
		},
	}
}

func storeCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "store <file>",
		Short: "Store a raw document",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				exitWithError(fmt.Errorf("failed to read file: %w", err))
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			run(func(ctx context.Context, d *Dependencies) error {
				res, err := d.IngestService.Store(ctx, name, mediaTypeOf(name, data), data)
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(res)
					return nil
				}
				state := "stored"
				if res.IsDuplicate {
					state = "duplicate of"
				}
				fmt.Printf("%s %s (%s, %s)\n", state, res.Document.ID, res.Document.Status, res.Document.ContentHash[:12])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Document name (defaults to the file name)")
	return cmd
}

func listCmd() *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents, optionally filtered by status",
		Run: func(cmd *cobra.Command, args []string) {
			filter := make([]ingest.Status, 0, len(statuses))
			for _, s := range statuses {
				st, err := ingest.ParseStatus(s)
				if err != nil {
					exitWithError(err)
				}
				filter = append(filter, st)
			}

			run(func(ctx context.Context, d *Dependencies) error {
				docs, err := d.IngestService.ListDocuments(ctx, filter...)
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(docs)
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tNAME\tCREATED")
				for _, doc := range docs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", doc.ID, doc.Status, doc.Name, doc.CreatedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <document-id>",
		Short: "Show a document with its artifacts and latest extraction",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseID(args[0])

			run(func(ctx context.Context, d *Dependencies) error {
				doc, err := d.IngestService.GetDocument(ctx, id)
				if err != nil {
					return err
				}
				artifacts, err := d.IngestService.ListArtifacts(ctx, id)
				if err != nil {
					return err
				}
				payload, err := d.IngestService.GetLatestExtractionPayload(ctx, id)
				if err != nil && !errors.Is(err, ingest.ErrNotFound) {
					return err
				}

				if jsonOutput {
					printJSON(map[string]interface{}{
						"document":   doc,
						"artifacts":  artifacts,
						"extraction": payload,
					})
					return nil
				}

				fmt.Printf("%s  %s  %s\n", doc.ID, doc.Status, doc.Name)
				if doc.LastError != nil {
					fmt.Printf("last error: %s\n", *doc.LastError)
				}
				for _, a := range artifacts {
					fmt.Printf("  artifact %-15s %s\n", a.Kind, a.StorageKey)
				}
				if payload != nil {
					printCandidates(payload.Candidates)
					fmt.Printf("confidence %.2f, passed %v, %d issue(s)\n",
						payload.Checks.Confidence, payload.Checks.Passed, len(payload.Checks.Issues))
				}
				return nil
			})
		},
	}
}

func processCmd() *cobra.Command {
	var (
		limit int
		docID string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process STORED documents through extraction and checks",
		Run: func(cmd *cobra.Command, args []string) {
			run(func(ctx context.Context, d *Dependencies) error {
				if docID != "" {
					doc, err := d.IngestService.ProcessDocument(ctx, parseID(docID))
					if err != nil {
						return err
					}
					return printDocument(doc)
				}

				if limit <= 0 {
					limit = d.Config.Pipeline.SweepLimit
				}
				res, err := d.IngestService.ProcessPending(ctx, limit)
				if err != nil {
					return err
				}
				return printSweep("processed", res.Processed, res)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum documents to process (defaults to SWEEP_LIMIT)")
	cmd.Flags().StringVar(&docID, "id", "", "Process a single STORED document")
	return cmd
}

func reviewCmd() *cobra.Command {
	var (
		decision    string
		reviewer    string
		payloadPath string
		notes       string
	)

	cmd := &cobra.Command{
		Use:   "review <document-id>",
		Short: "Record a review decision for a document in HITL_REVIEW",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseID(args[0])
			dec, err := ingest.ParseDecision(decision)
			if err != nil {
				exitWithError(err)
			}

			var draft *review.Draft
			if payloadPath != "" {
				data, err := os.ReadFile(payloadPath)
				if err != nil {
					exitWithError(fmt.Errorf("failed to read payload: %w", err))
				}
				if draft, err = review.ParseDraft(data); err != nil {
					exitWithError(err)
				}
			}

			run(func(ctx context.Context, d *Dependencies) error {
				if draft == nil {
					// Approve the extraction as it stands.
					if draft, err = d.IngestService.DraftFromLatest(ctx, id); err != nil {
						return err
					}
				}

				key, err := d.IngestService.SubmitReview(ctx, service.ReviewInput{
					DocumentID: id,
					Reviewer:   reviewer,
					Decision:   dec,
					Draft:      draft,
					Notes:      notes,
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(map[string]interface{}{"ok": true, "payload_key": key, "decision": dec})
				} else {
					fmt.Printf("review %s recorded (%s)\n", dec, key)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&decision, "decision", "d", "", "APPROVED, CHANGES or REJECTED")
	cmd.Flags().StringVarP(&reviewer, "reviewer", "r", os.Getenv("USER"), "Reviewer name")
	cmd.Flags().StringVarP(&payloadPath, "payload", "p", "", "JSON file with the reviewed candidates (defaults to the latest extraction)")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form review notes")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func finalizeCmd() *cobra.Command {
	var (
		limit int
		docID string
	)

	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Write approved documents to the ledger",
		Run: func(cmd *cobra.Command, args []string) {
			run(func(ctx context.Context, d *Dependencies) error {
				if docID != "" {
					res, err := d.IngestService.Finalize(ctx, parseID(docID))
					if err != nil {
						return err
					}
					if jsonOutput {
						printJSON(res)
					} else if res.AlreadyFinalized {
						fmt.Printf("%s already finalized\n", res.DocumentID)
					} else {
						fmt.Printf("%s finalized: %d inserted, %d linked\n", res.DocumentID, res.Inserted, res.Linked)
					}
					return nil
				}

				if limit <= 0 {
					limit = d.Config.Pipeline.SweepLimit
				}
				res, err := d.IngestService.FinalizePending(ctx, limit)
				if err != nil {
					return err
				}
				return printSweep("finalized", res.Finalized, res)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum documents to finalize (defaults to SWEEP_LIMIT)")
	cmd.Flags().StringVar(&docID, "id", "", "Finalize a single FINALIZE_PENDING document")
	return cmd
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <document-id>",
		Short: "Move a failed document back to STORED",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseID(args[0])
			run(func(ctx context.Context, d *Dependencies) error {
				doc, err := d.IngestService.ResetDocument(ctx, id)
				if err != nil {
					return err
				}
				return printDocument(doc)
			})
		},
	}
}

func searchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over ledger transactions",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			query := strings.Join(args, " ")
			run(func(ctx context.Context, d *Dependencies) error {
				txs, err := d.IngestService.SearchTransactions(ctx, d.SearchIndex, query, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(txs)
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DATE\tDESCRIPTION\tAMOUNT\tTYPE\tCATEGORY\tSOURCE")
				for _, tx := range txs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						tx.Date, tx.Description, money.Display(tx.Amount, money.BRL), tx.Direction, tx.Category, tx.Source)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum results")
	return cmd
}

func summaryCmd() *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize one month of the ledger",
		Run: func(cmd *cobra.Command, args []string) {
			run(func(ctx context.Context, d *Dependencies) error {
				s, err := d.IngestService.MonthlySummary(ctx, month)
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(s)
					return nil
				}

				fmt.Printf("%s: %d entries\n", s.Month, s.Count)
				fmt.Printf("  entrada %s\n  saida   %s\n  net     %s\n",
					money.Display(s.TotalIn, money.BRL),
					money.Display(s.TotalOut, money.BRL),
					money.Display(s.Net, money.BRL))
				for _, ct := range s.TopCategories {
					fmt.Printf("  %-14s %s (%.1f%%)\n", ct.Category, money.Display(ct.Total, money.BRL), ct.Share)
				}
				if s.LargestExpense != nil {
					fmt.Printf("largest expense: %s %s %s\n", s.LargestExpense.Date,
						s.LargestExpense.Description, money.Display(s.LargestExpense.Amount, money.BRL))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&month, "month", "m", "", "Month as YYYY-MM (defaults to the current month)")
	return cmd
}

func parseID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		exitWithError(fmt.Errorf("invalid document id %q: %w", s, err))
	}
	return id
}

// mediaTypeOf prefers the extension and falls back to content sniffing.
func mediaTypeOf(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func printDocument(doc *ingest.Document) error {
	if jsonOutput {
		printJSON(doc)
		return nil
	}
	fmt.Printf("%s  %s  %s\n", doc.ID, doc.Status, doc.Name)
	if doc.LastError != nil {
		fmt.Printf("last error: %s\n", *doc.LastError)
	}
	return nil
}

func printSweep(verb string, done int, res service.SweepResult) error {
	if jsonOutput {
		printJSON(res)
		return nil
	}
	fmt.Printf("found %d, %s %d, skipped %d, failed %d\n", res.Found, verb, done, res.Skipped, res.Failed)
	return nil
}

func printCandidates(candidates []ingest.Candidate) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tDATE\tDESCRIPTION\tAMOUNT\tTYPE\tCATEGORY")
	for i, c := range candidates {
		date := "-"
		if c.Date != nil {
			date = *c.Date
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%s\t%s\n", i, date, c.Description, c.Amount, c.DirectionOrEmpty(), c.CategoryOrEmpty())
	}
	_ = w.Flush()
}
