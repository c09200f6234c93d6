package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// Repository defines ledger access.
type Repository interface {
	// InsertBatch writes txs in one transaction. Existing natural keys are
	// left untouched except for backfilling a missing document reference.
	InsertBatch(ctx context.Context, documentID uuid.UUID, documentName, documentHash string, txs []Transaction) (InsertResult, error)
	List(ctx context.Context, limit int) ([]Transaction, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Transaction, error)
	CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error)
	ListMonth(ctx context.Context, month string) ([]Transaction, error)
}

// SQLiteRepository implements Repository on the SQLite ledger file.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) InsertBatch(ctx context.Context, documentID uuid.UUID, documentName, documentHash string, txs []Transaction) (InsertResult, error) {
	var result InsertResult

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if documentHash != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documentos (nome, hash) VALUES (?, ?) ON CONFLICT (hash) DO NOTHING`,
			documentName, documentHash,
		); err != nil {
			return result, fmt.Errorf("failed to record document: %w", err)
		}
	}

	docRef := documentID.String()
	for _, t := range txs {
		key := t.Key()
		category := t.Category
		if category == "" {
			category = DefaultCategory
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO transacoes (data, descricao, valor, tipo, fonte, categoria, document_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (data, descricao, valor, fonte, tipo) DO NOTHING`,
			key.Date, key.Description, key.Amount, key.Direction, key.Source, category, docRef,
		)
		if err != nil {
			return result, fmt.Errorf("failed to insert transaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.Inserted++
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE transacoes SET document_id = ?
			WHERE data = ? AND descricao = ? AND valor = ? AND fonte = ? AND tipo = ? AND document_id IS NULL`,
			docRef, key.Date, key.Description, key.Amount, key.Source, key.Direction,
		); err != nil {
			return result, fmt.Errorf("failed to backfill document reference: %w", err)
		}

		var id int64
		if err := tx.QueryRowContext(ctx, `
			SELECT id FROM transacoes
			WHERE data = ? AND descricao = ? AND valor = ? AND fonte = ? AND tipo = ?`,
			key.Date, key.Description, key.Amount, key.Source, key.Direction,
		).Scan(&id); err != nil {
			return result, fmt.Errorf("failed to look up transaction: %w", err)
		}

		res, err = tx.ExecContext(ctx,
			`INSERT INTO transacao_documentos (transacao_id, document_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			id, docRef,
		)
		if err != nil {
			return result, fmt.Errorf("failed to link transaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.Linked++
		}
	}

	if err := tx.Commit(); err != nil {
		return InsertResult{}, fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return result, nil
}

const transactionColumns = `id, data, descricao, valor, tipo, fonte, categoria, document_id`

func scanTransaction(row interface{ Scan(...any) error }) (Transaction, error) {
	var t Transaction
	var amount, direction string
	var docRef sql.NullString
	if err := row.Scan(&t.ID, &t.Date, &t.Description, &amount, &direction, &t.Source, &t.Category, &docRef); err != nil {
		return t, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return t, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	t.Amount = d
	t.Direction = ingest.Direction(direction)
	if docRef.Valid {
		if id, err := uuid.Parse(docRef.String); err == nil {
			t.DocumentID = &id
		}
	}
	return t, nil
}

// List returns the newest entries first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transacoes ORDER BY data DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

func (r *SQLiteRepository) GetByIDs(ctx context.Context, ids []int64) ([]Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[int64]Transaction, len(ids))
	for _, id := range ids {
		t, err := scanTransaction(r.db.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transacoes WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load transaction %d: %w", id, err)
		}
		byID[id] = t
	}

	out := make([]Transaction, 0, len(byID))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *SQLiteRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transacao_documentos WHERE document_id = ?`, documentID.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count document transactions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
