// Package store persists StatementImport records in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kieranpgray/coinbag-sub006/internal/core"
)

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// DBTX is the subset of pgxpool.Pool used by the store. Tests substitute a
// fake; production passes the pool.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ImportStore implements core.RecordStore on PostgreSQL.
type ImportStore struct {
	db  DBTX
	log *slog.Logger
}

// New builds an ImportStore. log may be nil.
func New(db DBTX, log *slog.Logger) *ImportStore {
	if log == nil {
		log = slog.Default()
	}
	return &ImportStore{db: db, log: log}
}

const importColumns = `id, owner_id, account_id, file_name, file_path, mime_type,
	file_size_bytes, file_hash, status, parsing_method,
	total_transactions, imported_transactions, failed_transactions,
	confidence_score, error_message, metadata, correlation_id,
	created_at, updated_at, completed_at`

// Create inserts a new import record in the pending state. A duplicate
// content hash for the same owner and account violates the unique index and
// comes back wrapping core.ErrDuplicateHash.
func (s *ImportStore) Create(ctx context.Context, params core.CreateParams) (*core.StatementImport, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
		INSERT INTO statement_imports (
			id, owner_id, account_id, file_name, file_path, mime_type,
			file_size_bytes, file_hash, status, correlation_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING `+importColumns,
		uuid.New().String(), params.OwnerID, params.AccountID,
		params.FileName, params.FilePath, params.MimeType,
		params.FileSizeBytes, params.FileHash, core.StatusPending,
		params.CorrelationID, now,
	)

	rec, err := scanImport(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("insert statement import: %w", core.ErrDuplicateHash)
		}
		return nil, fmt.Errorf("insert statement import: %w", err)
	}
	return rec, nil
}

// Get fetches one import by id.
func (s *ImportStore) Get(ctx context.Context, id string) (*core.StatementImport, error) {
	row := s.db.QueryRow(ctx, `SELECT `+importColumns+` FROM statement_imports WHERE id = $1`, id)
	rec, err := scanImport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrImportNotFound
		}
		return nil, fmt.Errorf("get statement import: %w", err)
	}
	return rec, nil
}

// Update applies a partial patch to an import record. CompletedAt is set on
// the first transition into a terminal status and never overwritten, even if
// the parser pushes a terminal status twice.
func (s *ImportStore) Update(ctx context.Context, id string, patch core.UpdateParams) (*core.StatementImport, error) {
	now := time.Now().UTC()
	set := []string{"updated_at = $1"}
	args := []any{now}

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, fmt.Errorf("update statement import: invalid status %q", *patch.Status)
		}
		add("status", *patch.Status)
		if patch.Status.IsTerminal() {
			args = append(args, now)
			set = append(set, fmt.Sprintf("completed_at = COALESCE(completed_at, $%d)", len(args)))
		}
	}
	if patch.ParsingMethod != nil {
		add("parsing_method", *patch.ParsingMethod)
	}
	if patch.TotalTransactions != nil {
		add("total_transactions", *patch.TotalTransactions)
	}
	if patch.ImportedTransactions != nil {
		add("imported_transactions", *patch.ImportedTransactions)
	}
	if patch.FailedTransactions != nil {
		add("failed_transactions", *patch.FailedTransactions)
	}
	if patch.ConfidenceScore != nil {
		add("confidence_score", *patch.ConfidenceScore)
	}
	if patch.ErrorMessage != nil {
		add("error_message", *patch.ErrorMessage)
	}
	if patch.Metadata != nil {
		add("metadata", patch.Metadata)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE statement_imports SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args), importColumns)

	rec, err := scanImport(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrImportNotFound
		}
		return nil, fmt.Errorf("update statement import: %w", err)
	}
	return rec, nil
}

// ListByAccount returns all imports for an account, newest first.
func (s *ImportStore) ListByAccount(ctx context.Context, accountID string) ([]core.StatementImport, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+importColumns+`
		FROM statement_imports
		WHERE account_id = $1
		ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list imports by account: %w", err)
	}
	return collectImports(rows)
}

// ListByStatus returns all imports in a given lifecycle state, oldest first.
// Used by the review resolution workflow to find stuck imports.
func (s *ImportStore) ListByStatus(ctx context.Context, status core.Status) ([]core.StatementImport, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("list imports by status: invalid status %q", status)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+importColumns+`
		FROM statement_imports
		WHERE status = $1
		ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("list imports by status: %w", err)
	}
	return collectImports(rows)
}

func collectImports(rows pgx.Rows) ([]core.StatementImport, error) {
	defer rows.Close()
	var out []core.StatementImport
	for rows.Next() {
		rec, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan statement import: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statement imports: %w", err)
	}
	return out, nil
}

// scanner covers pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanImport(row scanner) (*core.StatementImport, error) {
	var rec core.StatementImport
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.AccountID, &rec.FileName, &rec.FilePath,
		&rec.MimeType, &rec.FileSizeBytes, &rec.FileHash, &rec.Status,
		&rec.ParsingMethod, &rec.TotalTransactions, &rec.ImportedTransactions,
		&rec.FailedTransactions, &rec.ConfidenceScore, &rec.ErrorMessage,
		&rec.Metadata, &rec.CorrelationID, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
