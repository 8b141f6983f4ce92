package workbook

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/worksplit/internal/table"
)

// Memory is a Workbook held entirely in process memory.
// It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	nextGID int64
	sheets  map[string]*Sheet
	editors []string
	audit   []AuditRecord
	now     func() time.Time
}

// NewMemory returns an empty in-memory workbook.
func NewMemory() *Memory {
	return &Memory{
		nextGID: 1,
		sheets:  make(map[string]*Sheet),
		now:     time.Now,
	}
}

var _ Workbook = (*Memory)(nil)

func (m *Memory) CreateSheet(ctx context.Context, s NewSheet) (SheetInfo, error) {
	if err := ctx.Err(); err != nil {
		return SheetInfo{}, err
	}
	if err := ValidateName(s.Name); err != nil {
		return SheetInfo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(s)
}

func (m *Memory) createLocked(s NewSheet) (SheetInfo, error) {
	if _, exists := m.sheets[s.Name]; exists {
		return SheetInfo{}, fmt.Errorf("%w: %q", ErrDuplicateTableName, s.Name)
	}

	sheet := &Sheet{
		SheetInfo: SheetInfo{
			GID:       m.nextGID,
			Name:      s.Name,
			Position:  m.positionLocked(s.First),
			CreatedAt: m.now().UTC(),
		},
		Header: s.Header.Clone(),
		Rows:   PrepareRows(s.Header, s.Rows, s.Format),
		Format: cloneFormat(s.Format),
	}
	sheet.RowCount = len(sheet.Rows)
	m.nextGID++
	m.sheets[s.Name] = sheet

	return sheet.SheetInfo, nil
}

func (m *Memory) positionLocked(first bool) int64 {
	if len(m.sheets) == 0 {
		return 0
	}
	var lo, hi int64
	initialized := false
	for _, s := range m.sheets {
		if !initialized {
			lo, hi = s.Position, s.Position
			initialized = true
			continue
		}
		lo = min(lo, s.Position)
		hi = max(hi, s.Position)
	}
	if first {
		return lo - 1
	}
	return hi + 1
}

func (m *Memory) CreateFilteredSheet(ctx context.Context, name, source string, c table.Criteria, f Format) (SheetInfo, error) {
	if err := ctx.Err(); err != nil {
		return SheetInfo{}, err
	}
	if err := ValidateName(name); err != nil {
		return SheetInfo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sheets[source]
	if !ok {
		return SheetInfo{}, fmt.Errorf("%w: %q", ErrSheetNotFound, source)
	}
	return m.createLocked(FilteredSheet(name, src, c, f))
}

func (m *Memory) GetSheet(ctx context.Context, name string) (*Sheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	return cloneSheet(s), nil
}

func (m *Memory) ListSheets(ctx context.Context, prefix string) ([]SheetInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []SheetInfo
	for name, s := range m.sheets {
		if MatchesPrefix(name, prefix) {
			out = append(out, s.SheetInfo)
		}
	}
	sortInfos(out)
	return out, nil
}

func sortInfos(infos []SheetInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Position != infos[j].Position {
			return infos[i].Position < infos[j].Position
		}
		return infos[i].GID < infos[j].GID
	})
}

func (m *Memory) DeleteSheet(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sheets[name]; !ok {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	delete(m.sheets, name)
	return nil
}

func (m *Memory) SetFilter(ctx context.Context, name string, f *table.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sheets[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	s.Format.Filter = cloneFilter(f)
	return nil
}

func (m *Memory) SetCell(ctx context.Context, name string, row, col int, value table.Cell) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sheets[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	if row < 0 || row >= len(s.Rows) || col < 0 || col >= len(s.Header) {
		return fmt.Errorf("%w: %q row %d col %d", ErrCellOutOfRange, name, row, col)
	}

	updated := s.Rows[row].Clone()
	updated[col] = value
	s.Rows[row] = PrepareRows(s.Header, []table.Row{updated}, s.Format)[0]
	return nil
}

func (m *Memory) GrantEditor(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(m.editors, email) {
		m.editors = append(m.editors, email)
	}
	return nil
}

func (m *Memory) Editors(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.editors), nil
}

func (m *Memory) RecordAudit(ctx context.Context, rec AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, rec)
	return nil
}

func (m *Memory) ListAudit(ctx context.Context, limit int) ([]AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]AuditRecord, 0, len(m.audit))
	for i := len(m.audit) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, m.audit[i])
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() error {
	return nil
}

func cloneSheet(s *Sheet) *Sheet {
	rows := make([]table.Row, len(s.Rows))
	for i, r := range s.Rows {
		rows[i] = r.Clone()
	}
	return &Sheet{
		SheetInfo: s.SheetInfo,
		Header:    s.Header.Clone(),
		Rows:      rows,
		Format:    cloneFormat(s.Format),
	}
}

func cloneFormat(f Format) Format {
	f.TextColumns = slices.Clone(f.TextColumns)
	f.Filter = cloneFilter(f.Filter)
	return f
}

func cloneFilter(f *table.Filter) *table.Filter {
	if f == nil {
		return nil
	}
	return &table.Filter{Criteria: slices.Clone(f.Criteria)}
}
