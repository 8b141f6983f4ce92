// Package pgstore is the PostgreSQL workbook backend.
//
// Sheet metadata lives in the sheets table; rows are stored one per record
// in sheet_rows as JSON cell arrays and written with COPY.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/worksplit/internal/table"
	"github.com/JonMunkholm/worksplit/internal/workbook"
)

//go:embed schema.sql
var schema string

// pgUniqueViolation is the SQLSTATE for a unique constraint violation.
const pgUniqueViolation = "23505"

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store is a Workbook backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ workbook.Workbook = (*Store)(nil)

// Open connects to PostgreSQL, verifies the connection and applies the
// schema.
func Open(ctx context.Context, cfg PoolConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. The caller applies the schema with Migrate.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the workbook tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) CreateSheet(ctx context.Context, in workbook.NewSheet) (workbook.SheetInfo, error) {
	if err := workbook.ValidateName(in.Name); err != nil {
		return workbook.SheetInfo{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return workbook.SheetInfo{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	info, err := createSheet(ctx, tx, in)
	if err != nil {
		return workbook.SheetInfo{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return workbook.SheetInfo{}, fmt.Errorf("failed to commit sheet %q: %w", in.Name, err)
	}
	return info, nil
}

func createSheet(ctx context.Context, tx pgx.Tx, in workbook.NewSheet) (workbook.SheetInfo, error) {
	header, err := json.Marshal(in.Header)
	if err != nil {
		return workbook.SheetInfo{}, fmt.Errorf("encode header: %w", err)
	}
	format, err := json.Marshal(in.Format)
	if err != nil {
		return workbook.SheetInfo{}, fmt.Errorf("encode format: %w", err)
	}

	positionExpr := "COALESCE(MAX(position) + 1, 0)"
	if in.First {
		positionExpr = "COALESCE(MIN(position) - 1, 0)"
	}

	info := workbook.SheetInfo{Name: in.Name}
	err = tx.QueryRow(ctx, `
		INSERT INTO sheets (name, position, header, format)
		SELECT $1::text, `+positionExpr+`, $2::jsonb, $3::jsonb FROM sheets
		RETURNING gid, position, created_at`,
		in.Name, header, format,
	).Scan(&info.GID, &info.Position, &info.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return workbook.SheetInfo{}, fmt.Errorf("%w: %q", workbook.ErrDuplicateTableName, in.Name)
		}
		return workbook.SheetInfo{}, fmt.Errorf("insert sheet %q: %w", in.Name, err)
	}

	rows := workbook.PrepareRows(in.Header, in.Rows, in.Format)
	if len(rows) > 0 {
		src := make([][]any, len(rows))
		for i, r := range rows {
			cells, err := table.EncodeRow(r)
			if err != nil {
				return workbook.SheetInfo{}, fmt.Errorf("encode row %d: %w", i, err)
			}
			src[i] = []any{info.GID, i, cells}
		}

		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"sheet_rows"},
			[]string{"sheet_gid", "row_index", "cells"},
			pgx.CopyFromRows(src),
		); err != nil {
			return workbook.SheetInfo{}, fmt.Errorf("copy rows into %q: %w", in.Name, err)
		}
	}

	info.RowCount = len(rows)
	return info, nil
}

func (s *Store) CreateFilteredSheet(ctx context.Context, name, source string, c table.Criteria, f workbook.Format) (workbook.SheetInfo, error) {
	if err := workbook.ValidateName(name); err != nil {
		return workbook.SheetInfo{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return workbook.SheetInfo{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	src, err := getSheet(ctx, tx, source)
	if err != nil {
		return workbook.SheetInfo{}, err
	}

	info, err := createSheet(ctx, tx, workbook.FilteredSheet(name, src, c, f))
	if err != nil {
		return workbook.SheetInfo{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return workbook.SheetInfo{}, fmt.Errorf("failed to commit sheet %q: %w", name, err)
	}
	return info, nil
}

// querier is the subset of pgx shared by the pool and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) GetSheet(ctx context.Context, name string) (*workbook.Sheet, error) {
	return getSheet(ctx, s.pool, name)
}

func getSheet(ctx context.Context, q querier, name string) (*workbook.Sheet, error) {
	var (
		sheet         workbook.Sheet
		header, fmtJS []byte
	)
	err := q.QueryRow(ctx, `
		SELECT s.gid, s.name, s.position, s.header, s.format, s.created_at,
		       (SELECT count(*) FROM sheet_rows r WHERE r.sheet_gid = s.gid)
		FROM sheets s WHERE s.name = $1`, name,
	).Scan(&sheet.GID, &sheet.Name, &sheet.Position, &header, &fmtJS, &sheet.CreatedAt, &sheet.RowCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", workbook.ErrSheetNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get sheet %q: %w", name, err)
	}

	if err := json.Unmarshal(header, &sheet.Header); err != nil {
		return nil, fmt.Errorf("decode header of %q: %w", name, err)
	}
	if err := json.Unmarshal(fmtJS, &sheet.Format); err != nil {
		return nil, fmt.Errorf("decode format of %q: %w", name, err)
	}

	rows, err := q.Query(ctx,
		`SELECT cells FROM sheet_rows WHERE sheet_gid = $1 ORDER BY row_index`, sheet.GID)
	if err != nil {
		return nil, fmt.Errorf("get rows of %q: %w", name, err)
	}
	defer rows.Close()

	sheet.Rows = make([]table.Row, 0, sheet.RowCount)
	for rows.Next() {
		var cells []byte
		if err := rows.Scan(&cells); err != nil {
			return nil, err
		}
		r, err := table.DecodeRow(cells)
		if err != nil {
			return nil, fmt.Errorf("decode row of %q: %w", name, err)
		}
		sheet.Rows = append(sheet.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sheet, nil
}

func (s *Store) ListSheets(ctx context.Context, prefix string) ([]workbook.SheetInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.gid, s.name, s.position, s.created_at,
		       (SELECT count(*) FROM sheet_rows r WHERE r.sheet_gid = s.gid)
		FROM sheets s
		WHERE starts_with(s.name, $1)
		ORDER BY s.position, s.gid`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}

	infos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (workbook.SheetInfo, error) {
		var info workbook.SheetInfo
		err := row.Scan(&info.GID, &info.Name, &info.Position, &info.CreatedAt, &info.RowCount)
		return info, err
	})
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	return infos, nil
}

func (s *Store) DeleteSheet(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sheets WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete sheet %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", workbook.ErrSheetNotFound, name)
	}
	return nil
}

func (s *Store) SetFilter(ctx context.Context, name string, f *table.Filter) error {
	var filter []byte
	if f != nil {
		var err error
		if filter, err = json.Marshal(f); err != nil {
			return fmt.Errorf("encode filter: %w", err)
		}
	}

	var tag pgconn.CommandTag
	var err error
	if filter == nil {
		tag, err = s.pool.Exec(ctx,
			`UPDATE sheets SET format = format - 'filter' WHERE name = $1`, name)
	} else {
		tag, err = s.pool.Exec(ctx,
			`UPDATE sheets SET format = jsonb_set(format, '{filter}', $2::jsonb) WHERE name = $1`,
			name, filter)
	}
	if err != nil {
		return fmt.Errorf("set filter on %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", workbook.ErrSheetNotFound, name)
	}
	return nil
}

func (s *Store) SetCell(ctx context.Context, name string, row, col int, value table.Cell) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		gid           int64
		header, fmtJS []byte
		cells         []byte
	)
	err = tx.QueryRow(ctx, `SELECT gid, header, format FROM sheets WHERE name = $1`, name).
		Scan(&gid, &header, &fmtJS)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %q", workbook.ErrSheetNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("get sheet %q: %w", name, err)
	}

	var (
		h table.Header
		f workbook.Format
	)
	if err := json.Unmarshal(header, &h); err != nil {
		return fmt.Errorf("decode header of %q: %w", name, err)
	}
	if err := json.Unmarshal(fmtJS, &f); err != nil {
		return fmt.Errorf("decode format of %q: %w", name, err)
	}
	if col < 0 || col >= len(h) {
		return fmt.Errorf("%w: %q row %d col %d", workbook.ErrCellOutOfRange, name, row, col)
	}

	err = tx.QueryRow(ctx,
		`SELECT cells FROM sheet_rows WHERE sheet_gid = $1 AND row_index = $2 FOR UPDATE`, gid, row).
		Scan(&cells)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %q row %d col %d", workbook.ErrCellOutOfRange, name, row, col)
	}
	if err != nil {
		return fmt.Errorf("get row %d of %q: %w", row, name, err)
	}

	r, err := table.DecodeRow(cells)
	if err != nil {
		return fmt.Errorf("decode row %d of %q: %w", row, name, err)
	}
	r = workbook.PrepareRows(h, []table.Row{r}, workbook.Format{})[0]
	r[col] = value
	r = workbook.PrepareRows(h, []table.Row{r}, f)[0]

	encoded, err := table.EncodeRow(r)
	if err != nil {
		return fmt.Errorf("encode row %d of %q: %w", row, name, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE sheet_rows SET cells = $3 WHERE sheet_gid = $1 AND row_index = $2`,
		gid, row, encoded); err != nil {
		return fmt.Errorf("update row %d of %q: %w", row, name, err)
	}

	return tx.Commit(ctx)
}

func (s *Store) GrantEditor(ctx context.Context, email string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO editors (email) VALUES ($1) ON CONFLICT (email) DO NOTHING`, email)
	if err != nil {
		return fmt.Errorf("grant editor %q: %w", email, err)
	}
	return nil
}

func (s *Store) Editors(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT email FROM editors ORDER BY granted_at, email`)
	if err != nil {
		return nil, fmt.Errorf("list editors: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) RecordAudit(ctx context.Context, rec workbook.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var detail []byte
	if rec.Detail != nil {
		var err error
		detail, err = json.Marshal(rec.Detail)
		if err != nil {
			detail = nil // Fall back to nil if marshaling fails
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, action, severity, sheet_name, rows_affected,
		                       run_id, ip_address, user_agent, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.Action, rec.Severity, toPgText(rec.SheetName), rec.RowsAffected,
		toPgText(rec.RunID), toPgText(rec.IPAddress), toPgText(rec.UserAgent), detail, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]workbook.AuditRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, action, severity, sheet_name, rows_affected,
		       run_id, ip_address, user_agent, detail, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return pgx.CollectRows(rows, scanAuditRow)
}

// scanAuditRow scans a single row from audit_log into an AuditRecord.
func scanAuditRow(row pgx.CollectableRow) (workbook.AuditRecord, error) {
	var (
		rec       workbook.AuditRecord
		sheetName pgtype.Text
		runID     pgtype.Text
		ipAddress pgtype.Text
		userAgent pgtype.Text
		detail    []byte
	)
	err := row.Scan(&rec.ID, &rec.Action, &rec.Severity, &sheetName, &rec.RowsAffected,
		&runID, &ipAddress, &userAgent, &detail, &rec.CreatedAt)
	if err != nil {
		return rec, err
	}

	rec.SheetName = sheetName.String
	rec.RunID = runID.String
	rec.IPAddress = ipAddress.String
	rec.UserAgent = userAgent.String
	if detail != nil {
		_ = json.Unmarshal(detail, &rec.Detail)
	}
	return rec, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}
