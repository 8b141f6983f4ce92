// Package sqlitestore keeps a workbook in a single SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/worksplit/internal/table"
	"github.com/JonMunkholm/worksplit/internal/workbook"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS sheets (
	gid INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	position INTEGER NOT NULL,
	header TEXT NOT NULL,
	format TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sheet_rows (
	sheet_gid INTEGER NOT NULL,
	row_index INTEGER NOT NULL,
	cells TEXT NOT NULL,
	PRIMARY KEY (sheet_gid, row_index)
);
CREATE TABLE IF NOT EXISTS editors (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	granted_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS audit_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	action TEXT NOT NULL,
	severity TEXT NOT NULL,
	sheet_name TEXT NOT NULL DEFAULT '',
	rows_affected INTEGER NOT NULL DEFAULT 0,
	run_id TEXT NOT NULL DEFAULT '',
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	detail TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
`

// Store is a Workbook backed by SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writers; SQLite allows one at a time
}

var _ workbook.Workbook = (*Store)(nil)

// Open opens or creates the workbook file at path. Pass MemoryPath for a
// throwaway workbook.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateSheet(ctx context.Context, in workbook.NewSheet) (workbook.SheetInfo, error) {
	if err := workbook.ValidateName(in.Name); err != nil {
		return workbook.SheetInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workbook.SheetInfo{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	info, err := createSheet(ctx, tx, in)
	if err != nil {
		return workbook.SheetInfo{}, err
	}
	if err := tx.Commit(); err != nil {
		return workbook.SheetInfo{}, fmt.Errorf("failed to commit sheet %q: %w", in.Name, err)
	}
	return info, nil
}

func createSheet(ctx context.Context, tx *sql.Tx, in workbook.NewSheet) (workbook.SheetInfo, error) {
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
	var position int64
	if err := tx.QueryRowContext(ctx, `SELECT `+positionExpr+` FROM sheets`).Scan(&position); err != nil {
		return workbook.SheetInfo{}, fmt.Errorf("sheet position: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO sheets (name, position, header, format, created_at) VALUES (?, ?, ?, ?, ?)`,
		in.Name, position, string(header), string(format), now.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return workbook.SheetInfo{}, fmt.Errorf("%w: %q", workbook.ErrDuplicateTableName, in.Name)
		}
		return workbook.SheetInfo{}, fmt.Errorf("insert sheet %q: %w", in.Name, err)
	}
	gid, err := res.LastInsertId()
	if err != nil {
		return workbook.SheetInfo{}, err
	}

	rows := workbook.PrepareRows(in.Header, in.Rows, in.Format)
	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO sheet_rows (sheet_gid, row_index, cells) VALUES (?, ?, ?)`)
		if err != nil {
			return workbook.SheetInfo{}, err
		}
		defer stmt.Close()

		for i, r := range rows {
			cells, err := table.EncodeRow(r)
			if err != nil {
				return workbook.SheetInfo{}, fmt.Errorf("encode row %d: %w", i, err)
			}
			if _, err := stmt.ExecContext(ctx, gid, i, string(cells)); err != nil {
				return workbook.SheetInfo{}, fmt.Errorf("insert row %d into %q: %w", i, in.Name, err)
			}
		}
	}

	return workbook.SheetInfo{
		GID:       gid,
		Name:      in.Name,
		Position:  position,
		RowCount:  len(rows),
		CreatedAt: now,
	}, nil
}

func (s *Store) CreateFilteredSheet(ctx context.Context, name, source string, c table.Criteria, f workbook.Format) (workbook.SheetInfo, error) {
	if err := workbook.ValidateName(name); err != nil {
		return workbook.SheetInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workbook.SheetInfo{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	src, err := getSheet(ctx, tx, source)
	if err != nil {
		return workbook.SheetInfo{}, err
	}
	info, err := createSheet(ctx, tx, workbook.FilteredSheet(name, src, c, f))
	if err != nil {
		return workbook.SheetInfo{}, err
	}
	if err := tx.Commit(); err != nil {
		return workbook.SheetInfo{}, fmt.Errorf("failed to commit sheet %q: %w", name, err)
	}
	return info, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) GetSheet(ctx context.Context, name string) (*workbook.Sheet, error) {
	return getSheet(ctx, s.db, name)
}

func getSheet(ctx context.Context, q querier, name string) (*workbook.Sheet, error) {
	var (
		sheet                      workbook.Sheet
		header, format, createdStr string
	)
	err := q.QueryRowContext(ctx, `
		SELECT gid, name, position, header, format, created_at,
		       (SELECT count(*) FROM sheet_rows r WHERE r.sheet_gid = s.gid)
		FROM sheets s WHERE name = ?`, name,
	).Scan(&sheet.GID, &sheet.Name, &sheet.Position, &header, &format, &createdStr, &sheet.RowCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", workbook.ErrSheetNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get sheet %q: %w", name, err)
	}
	sheet.CreatedAt = parseTime(createdStr)

	if err := json.Unmarshal([]byte(header), &sheet.Header); err != nil {
		return nil, fmt.Errorf("decode header of %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(format), &sheet.Format); err != nil {
		return nil, fmt.Errorf("decode format of %q: %w", name, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT cells FROM sheet_rows WHERE sheet_gid = ? ORDER BY row_index`, sheet.GID)
	if err != nil {
		return nil, fmt.Errorf("get rows of %q: %w", name, err)
	}
	defer rows.Close()

	sheet.Rows = make([]table.Row, 0, sheet.RowCount)
	for rows.Next() {
		var cells string
		if err := rows.Scan(&cells); err != nil {
			return nil, err
		}
		r, err := table.DecodeRow([]byte(cells))
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT gid, name, position, created_at,
		       (SELECT count(*) FROM sheet_rows r WHERE r.sheet_gid = s.gid)
		FROM sheets s
		ORDER BY position, gid`)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	defer rows.Close()

	var infos []workbook.SheetInfo
	for rows.Next() {
		var (
			info    workbook.SheetInfo
			created string
		)
		if err := rows.Scan(&info.GID, &info.Name, &info.Position, &created, &info.RowCount); err != nil {
			return nil, err
		}
		// LIKE treats % and _ as wildcards, so prefix matching happens here.
		if !workbook.MatchesPrefix(info.Name, prefix) {
			continue
		}
		info.CreatedAt = parseTime(created)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *Store) DeleteSheet(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var gid int64
	err = tx.QueryRowContext(ctx, `SELECT gid FROM sheets WHERE name = ?`, name).Scan(&gid)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", workbook.ErrSheetNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("delete sheet %q: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE sheet_gid = ?`, gid); err != nil {
		return fmt.Errorf("delete rows of %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sheets WHERE gid = ?`, gid); err != nil {
		return fmt.Errorf("delete sheet %q: %w", name, err)
	}
	return tx.Commit()
}

func (s *Store) SetFilter(ctx context.Context, name string, f *table.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT format FROM sheets WHERE name = ?`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", workbook.ErrSheetNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("get format of %q: %w", name, err)
	}

	var format workbook.Format
	if err := json.Unmarshal([]byte(raw), &format); err != nil {
		return fmt.Errorf("decode format of %q: %w", name, err)
	}
	format.Filter = f

	encoded, err := json.Marshal(format)
	if err != nil {
		return fmt.Errorf("encode format: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sheets SET format = ? WHERE name = ?`, string(encoded), name); err != nil {
		return fmt.Errorf("set filter on %q: %w", name, err)
	}
	return tx.Commit()
}

func (s *Store) SetCell(ctx context.Context, name string, row, col int, value table.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		gid            int64
		header, format string
		cells          string
	)
	err = tx.QueryRowContext(ctx, `SELECT gid, header, format FROM sheets WHERE name = ?`, name).
		Scan(&gid, &header, &format)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", workbook.ErrSheetNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("get sheet %q: %w", name, err)
	}

	var (
		h table.Header
		f workbook.Format
	)
	if err := json.Unmarshal([]byte(header), &h); err != nil {
		return fmt.Errorf("decode header of %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(format), &f); err != nil {
		return fmt.Errorf("decode format of %q: %w", name, err)
	}
	if col < 0 || col >= len(h) {
		return fmt.Errorf("%w: %q row %d col %d", workbook.ErrCellOutOfRange, name, row, col)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT cells FROM sheet_rows WHERE sheet_gid = ? AND row_index = ?`, gid, row).Scan(&cells)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q row %d col %d", workbook.ErrCellOutOfRange, name, row, col)
	}
	if err != nil {
		return fmt.Errorf("get row %d of %q: %w", row, name, err)
	}

	r, err := table.DecodeRow([]byte(cells))
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
	if _, err := tx.ExecContext(ctx,
		`UPDATE sheet_rows SET cells = ? WHERE sheet_gid = ? AND row_index = ?`,
		string(encoded), gid, row); err != nil {
		return fmt.Errorf("update row %d of %q: %w", row, name, err)
	}
	return tx.Commit()
}

func (s *Store) GrantEditor(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO editors (email, granted_at) VALUES (?, ?)`,
		email, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("grant editor %q: %w", email, err)
	}
	return nil
}

func (s *Store) Editors(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email FROM editors ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list editors: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

func (s *Store) RecordAudit(ctx context.Context, rec workbook.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var detail sql.NullString
	if rec.Detail != nil {
		if b, err := json.Marshal(rec.Detail); err == nil {
			detail = sql.NullString{String: string(b), Valid: true}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, severity, sheet_name, rows_affected,
		                       run_id, ip_address, user_agent, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Action, rec.Severity, rec.SheetName, rec.RowsAffected,
		rec.RunID, rec.IPAddress, rec.UserAgent, detail, rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]workbook.AuditRecord, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, severity, sheet_name, rows_affected,
		       run_id, ip_address, user_agent, detail, created_at
		FROM audit_log
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var out []workbook.AuditRecord
	for rows.Next() {
		var (
			rec     workbook.AuditRecord
			detail  sql.NullString
			created string
		)
		if err := rows.Scan(&rec.ID, &rec.Action, &rec.Severity, &rec.SheetName, &rec.RowsAffected,
			&rec.RunID, &rec.IPAddress, &rec.UserAgent, &detail, &created); err != nil {
			return nil, err
		}
		if detail.Valid {
			_ = json.Unmarshal([]byte(detail.String), &rec.Detail)
		}
		rec.CreatedAt = parseTime(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
