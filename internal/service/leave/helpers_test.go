package leave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/clock"
	"github.com/cmlabs-hris/hris-leave-go/internal/repository/memory"
)

const (
	sickID     leave.LeaveTypeID = "01900000-0000-7000-8000-000000000001"
	personalID leave.LeaveTypeID = "01900000-0000-7000-8000-000000000002"
	vacationID leave.LeaveTypeID = "01900000-0000-7000-8000-000000000003"

	employeeA leave.EmployeeID = "emp-a"
	employeeB leave.EmployeeID = "emp-b"
	admin     leave.UserID     = "admin-1"
)

func leaveTypes() []leave.LeaveTypeDefinition {
	sickCode := "SICK"
	return []leave.LeaveTypeDefinition{
		{ID: sickID, Name: "Sick Leave", Code: &sickCode, LegacyNames: []string{"Sakit"}, RequiresAttachment: true},
		{ID: personalID, Name: "Personal Leave", LegacyNames: []string{"Izin"}, AllowHourly: true},
		{ID: vacationID, Name: "Vacation", LegacyNames: []string{"Cuti Tahunan"}},
	}
}

// recordingSink keeps every emitted event. err, when set, is returned from Emit.
type recordingSink struct {
	mu     sync.Mutex
	events []leave.Event
	err    error
}

func (s *recordingSink) Emit(_ context.Context, e leave.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) names() []leave.EventName {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []leave.EventName
	for _, e := range s.events {
		out = append(out, e.Name)
	}
	return out
}

type fixture struct {
	store *memory.Store
	clock *clock.Fixed
	sink  *recordingSink
	svc   *LeaveServiceImpl
}

type fixtureOptions struct {
	requests leave.RequestRepository
	ledger   leave.LedgerRepository
	tx       leave.Transactor
	cfg      Config
}

func withLedger(wrap func(leave.LedgerRepository) leave.LedgerRepository) func(*fixture, *fixtureOptions) {
	return func(f *fixture, o *fixtureOptions) { o.ledger = wrap(o.ledger) }
}

func withRequests(wrap func(leave.RequestRepository) leave.RequestRepository) func(*fixture, *fixtureOptions) {
	return func(f *fixture, o *fixtureOptions) { o.requests = wrap(o.requests) }
}

func withTransactor(tx leave.Transactor) func(*fixture, *fixtureOptions) {
	return func(f *fixture, o *fixtureOptions) { o.tx = tx }
}

func withConfig(cfg Config) func(*fixture, *fixtureOptions) {
	return func(f *fixture, o *fixtureOptions) { o.cfg = cfg }
}

func newFixture(t *testing.T, opts ...func(*fixture, *fixtureOptions)) *fixture {
	t.Helper()

	clk := clock.NewFixed(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC))
	f := &fixture{
		store: memory.NewStore(leaveTypes()...).WithClock(clk.Now),
		clock: clk,
		sink:  &recordingSink{},
	}
	o := &fixtureOptions{requests: f.store, ledger: f.store, cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(f, o)
	}

	f.svc = NewLeaveService(o.requests, o.ledger, f.store, o.tx, clk, f.sink, slog.New(slog.DiscardHandler), o.cfg)
	return f
}

// seedApproved stores an already approved request, bypassing the ledger.
func (f *fixture) seedApproved(t *testing.T, id leave.RequestID, employee leave.EmployeeID, leaveType string, start, end string, createdAt time.Time) leave.LeaveRequest {
	t.Helper()
	approvedAt := createdAt.Add(time.Hour)
	approver := admin
	r, err := f.store.Create(context.Background(), leave.LeaveRequest{
		ID:          id,
		EmployeeID:  employee,
		LeaveTypeID: leave.LeaveTypeID(leaveType),
		StartDate:   date(start),
		EndDate:     date(end),
		Status:      leave.LeaveRequestStatusApproved,
		ApprovedBy:  &approver,
		ApprovedAt:  &approvedAt,
		CreatedBy:   admin,
		CreatedAt:   createdAt,
		UpdatedAt:   approvedAt,
	})
	if err != nil {
		t.Fatalf("seed approved request: %v", err)
	}
	return r
}

func (f *fixture) createDayRequest(t *testing.T, employee leave.EmployeeID, leaveType leave.LeaveTypeID, start, end string) leave.LeaveRequest {
	t.Helper()
	req := leave.CreateLeaveRequestRequest{
		EmployeeID:  employee.String(),
		LeaveTypeID: leaveType.String(),
		StartDate:   start,
		EndDate:     end,
		Reason:      "family matters",
		CreatedBy:   employee.String(),
	}
	if leaveType == sickID {
		req.Attachments = []string{"uploads/doctor-note.pdf"}
	}
	r, err := f.svc.CreateLeaveRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("create leave request: %v", err)
	}
	return r
}

// failingLedger fails ApplyConsumption while failures > 0.
type failingLedger struct {
	leave.LedgerRepository
	mu       sync.Mutex
	failures int
}

var errLedgerDown = errors.New("ledger connection reset")

func (l *failingLedger) ApplyConsumption(ctx context.Context, app leave.LedgerApplication) (bool, error) {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return false, &leave.StorageError{Op: "apply ledger consumption", Err: errLedgerDown}
	}
	l.mu.Unlock()
	return l.LedgerRepository.ApplyConsumption(ctx, app)
}

// blockingRequests blocks GetByID until the context ends.
type blockingRequests struct {
	leave.RequestRepository
}

func (blockingRequests) GetByID(ctx context.Context, _ leave.RequestID) (leave.LeaveRequest, error) {
	<-ctx.Done()
	return leave.LeaveRequest{}, ctx.Err()
}

// countingTransactor runs fn directly and counts how often it was asked to.
type countingTransactor struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return fn(ctx)
}
