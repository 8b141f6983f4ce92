package registration

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/JonMunkholm/worksplit/internal/logging"
	"github.com/JonMunkholm/worksplit/internal/workbook"
)

// Sheets is the part of the workbook the processor reads and writes.
type Sheets interface {
	GetSheet(ctx context.Context, name string) (*workbook.Sheet, error)
	SetCell(ctx context.Context, name string, row, col int, value any) error
}

// Granter gives a registrant edit access to the shared workbook.
type Granter interface {
	GrantEditor(ctx context.Context, email string) error
}

// Notifier sends the registration mails.
type Notifier interface {
	NotifyRegistrant(ctx context.Context, r Registrant) error
	NotifyAdmin(ctx context.Context, approved []Registrant) error
}

// Event is a form submission: the range of the registration sheet that the
// form appended.
type Event struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	NumRows int    `json:"num_rows"`
}

// Result is the outcome for one registration row.
type Result struct {
	Registrant Registrant `json:"registrant"`

	// Skipped is set when the row already held a terminal status.
	Skipped bool `json:"skipped,omitempty"`

	// Error describes a swallowed side-effect failure of a rejected row.
	Error string `json:"error,omitempty"`
}

// BatchResult summarizes ProcessPending.
type BatchResult struct {
	Results  []Result `json:"results"`
	Approved int      `json:"approved"`
	Rejected int      `json:"rejected"`
}

// Processor moves registration rows from pending to approved or rejected.
// Events and pending passes are serialized so a row is processed once even
// when the poller and an event reach it together.
type Processor struct {
	mu sync.Mutex

	sheets   Sheets
	granter  Granter
	notifier Notifier
	labels   Labels
}

// NewProcessor returns a processor. Zero-valued labels fall back to
// DefaultLabels.
func NewProcessor(sheets Sheets, granter Granter, notifier Notifier, labels Labels) *Processor {
	def := DefaultLabels()
	if labels.Name == "" {
		labels.Name = def.Name
	}
	if labels.Email == "" {
		labels.Email = def.Email
	}
	if labels.Affiliation == "" {
		labels.Affiliation = def.Affiliation
	}
	if labels.Timestamp == "" {
		labels.Timestamp = def.Timestamp
	}
	if labels.Status == "" {
		labels.Status = def.Status
	}
	if labels.Approved == "" {
		labels.Approved = def.Approved
	}
	if labels.Rejected == "" {
		labels.Rejected = def.Rejected
	}

	return &Processor{
		sheets:   sheets,
		granter:  granter,
		notifier: notifier,
		labels:   labels,
	}
}

// Labels returns the labels in use.
func (p *Processor) Labels() Labels {
	return p.labels
}

// IsTerminal reports whether s is the approved or rejected label. Any other
// value, blank or not, leaves the row pending.
func (l Labels) IsTerminal(s Status) bool {
	v := Status(strings.TrimSpace(string(s)))
	return v == l.Approved || v == l.Rejected
}

// HandleEvent processes the single row named by ev.
//
// Grant or mail failures do not fail the call: they are logged and the row
// is marked rejected. The status cell is written in every case that reaches
// the side effects. A row that already holds a terminal status is left alone.
func (p *Processor) HandleEvent(ctx context.Context, ev Event) (Result, error) {
	if ev.NumRows != 1 {
		return Result{}, fmt.Errorf("%w: %s row %d spans %d rows", ErrMultiRowInput, ev.Sheet, ev.Row, ev.NumRows)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sheet, err := p.sheets.GetSheet(ctx, ev.Sheet)
	if err != nil {
		return Result{}, err
	}
	cols, err := resolveColumns(sheet.Header, p.labels)
	if err != nil {
		return Result{}, err
	}

	idx := ev.Row - 2
	if idx < 0 || idx >= len(sheet.Rows) {
		return Result{}, fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, ev.Sheet, ev.Row)
	}

	reg := cols.registrant(sheet.Rows[idx], ev.Row)
	if p.labels.IsTerminal(reg.Status) {
		logging.FromContext(ctx).Info("registration already processed",
			"sheet", ev.Sheet, "row", ev.Row, "status", string(reg.Status))
		return Result{Registrant: reg, Skipped: true}, nil
	}

	res := p.approve(ctx, reg)
	if err := p.sheets.SetCell(ctx, ev.Sheet, idx, cols.status, string(res.Registrant.Status)); err != nil {
		return res, fmt.Errorf("write status of row %d: %w", ev.Row, err)
	}

	if res.Registrant.Status == p.labels.Approved {
		p.notifyAdmin(ctx, []Registrant{res.Registrant})
	}
	return res, nil
}

// ProcessPending processes every row of sheet without a terminal status.
// Each registrant gets their own mail; the admin gets one summary of everyone
// approved in the batch.
func (p *Processor) ProcessPending(ctx context.Context, sheetName string) (BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sheet, err := p.sheets.GetSheet(ctx, sheetName)
	if err != nil {
		return BatchResult{}, err
	}
	cols, err := resolveColumns(sheet.Header, p.labels)
	if err != nil {
		return BatchResult{}, err
	}

	var (
		batch    BatchResult
		approved []Registrant
	)
	for i, row := range sheet.Rows {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		reg := cols.registrant(row, i+2)
		if p.labels.IsTerminal(reg.Status) {
			continue
		}
		// Skip blank form rows.
		if strings.TrimSpace(reg.Email) == "" && strings.TrimSpace(reg.Name) == "" {
			continue
		}

		res := p.approve(ctx, reg)
		if err := p.sheets.SetCell(ctx, sheetName, i, cols.status, string(res.Registrant.Status)); err != nil {
			return batch, fmt.Errorf("write status of row %d: %w", reg.Row, err)
		}

		batch.Results = append(batch.Results, res)
		if res.Registrant.Status == p.labels.Approved {
			batch.Approved++
			approved = append(approved, res.Registrant)
		} else {
			batch.Rejected++
		}
	}

	if len(approved) > 0 {
		p.notifyAdmin(ctx, approved)
	}
	return batch, nil
}

// approve performs the side effects for one pending registrant and returns
// the registrant carrying its terminal status.
func (p *Processor) approve(ctx context.Context, reg Registrant) Result {
	logger := logging.WithFields(ctx, "row", reg.Row, "email", reg.Email)

	err := p.grantAndNotify(ctx, reg)
	if err != nil {
		logger.Error("registration rejected", "error", err)
		reg.Status = p.labels.Rejected
		return Result{Registrant: reg, Error: err.Error()}
	}

	logger.Info("registration approved")
	reg.Status = p.labels.Approved
	return Result{Registrant: reg}
}

func (p *Processor) grantAndNotify(ctx context.Context, reg Registrant) error {
	if strings.TrimSpace(reg.Email) == "" {
		return ErrMissingEmail
	}
	if err := p.granter.GrantEditor(ctx, reg.Email); err != nil {
		return fmt.Errorf("grant editor: %w", err)
	}
	if err := p.notifier.NotifyRegistrant(ctx, reg); err != nil {
		return fmt.Errorf("notify registrant: %w", err)
	}
	return nil
}

// notifyAdmin is best effort; a failure is only logged.
func (p *Processor) notifyAdmin(ctx context.Context, approved []Registrant) {
	if err := p.notifier.NotifyAdmin(ctx, approved); err != nil {
		logging.FromContext(ctx).Warn("admin notification failed",
			"registrants", len(approved), "error", err)
	}
}
