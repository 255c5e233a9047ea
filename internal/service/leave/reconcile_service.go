package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const reconcileFlightKey = "reconcile"

// ReconcileService rebuilds the quota ledger from approved request history.
// Each group is overwritten with a compare-and-swap on the entry version, so
// a live approval that lands mid-run forces a recompute instead of being
// overwritten.
type ReconcileService struct {
	requests    leave.RequestRepository
	ledger      leave.LedgerRepository
	resolver    leave.LeaveTypeResolver
	clock       leave.Clock
	logger      *slog.Logger
	concurrency int
	maxRetries  int
	flight      singleflight.Group
}

func NewReconcileService(
	requestRepository leave.RequestRepository,
	ledgerRepository leave.LedgerRepository,
	resolver leave.LeaveTypeResolver,
	clock leave.Clock,
	logger *slog.Logger,
	concurrency, maxRetries int,
) *ReconcileService {
	if concurrency <= 0 {
		concurrency = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ReconcileService{
		requests:    requestRepository,
		ledger:      ledgerRepository,
		resolver:    resolver,
		clock:       clock,
		logger:      logger,
		concurrency: concurrency,
		maxRetries:  maxRetries,
	}
}

// Run reconciles the whole ledger. Concurrent callers share one run; a caller
// whose ctx ends stops waiting but does not cancel the shared run.
func (s *ReconcileService) Run(ctx context.Context) (leave.ReconcileReport, error) {
	runCtx := context.WithoutCancel(ctx)
	resultChan := s.flight.DoChan(reconcileFlightKey, func() (interface{}, error) {
		return s.run(runCtx)
	})
	select {
	case <-ctx.Done():
		return leave.ReconcileReport{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return leave.ReconcileReport{}, res.Err
		}
		return res.Val.(leave.ReconcileReport), nil
	}
}

// group is one (employee, leave type) total being rebuilt.
type group struct {
	key     leave.LedgerKey
	totals  leave.QuotaLedgerEntry
	apps    []leave.LedgerApplication
	failure *leave.GroupFailure
}

type groupOutcome int

const (
	outcomeInserted groupOutcome = iota
	outcomeUpdated
	outcomeUnchanged
	outcomeZeroed
	outcomeFailed
)

func (s *ReconcileService) run(ctx context.Context) (leave.ReconcileReport, error) {
	report := leave.ReconcileReport{StartedAt: s.clock.Now()}

	// Versions are read before history so any consumption applied after the
	// history read also bumps a version and fails the swap.
	entries, err := s.ledger.ListEntries(ctx)
	if err != nil {
		return leave.ReconcileReport{}, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	versions := make(map[leave.LedgerKey]leave.QuotaLedgerEntry, len(entries))
	for _, e := range entries {
		versions[e.Key()] = e
	}

	approved, err := s.requests.ListApproved(ctx)
	if err != nil {
		return leave.ReconcileReport{}, fmt.Errorf("failed to list approved leave requests: %w", err)
	}
	report.Requests = len(approved)

	resolver := newResolveCache(s.resolver)
	groups, unresolved := accumulate(ctx, approved, resolver)
	report.Groups = len(groups)

	// Entries with no approved history are zeroed, except for employees with
	// rows whose leave type could not be resolved: those rows may belong to
	// the entry.
	seen := make(map[leave.LedgerKey]bool, len(groups))
	for _, g := range groups {
		seen[g.key] = true
	}
	var zeroCandidates []leave.QuotaLedgerEntry
	for _, e := range entries {
		if seen[e.Key()] || unresolved[e.EmployeeID] {
			continue
		}
		zeroCandidates = append(zeroCandidates, e)
	}

	var mu sync.Mutex
	record := func(outcome groupOutcome, retried int, failure *leave.GroupFailure) {
		mu.Lock()
		defer mu.Unlock()
		report.Retried += retried
		switch outcome {
		case outcomeInserted:
			report.Inserted++
		case outcomeUpdated:
			report.Updated++
		case outcomeUnchanged:
			report.Unchanged++
		case outcomeZeroed:
			report.Zeroed++
		case outcomeFailed:
			report.Failures = append(report.Failures, *failure)
		}
	}

	var eg errgroup.Group
	eg.SetLimit(s.concurrency)

	for _, g := range groups {
		if g.failure != nil {
			record(outcomeFailed, 0, g.failure)
			continue
		}
		prev, exists := versions[g.key]
		eg.Go(func() error {
			outcome, retried, failure := s.writeGroup(ctx, g, prev, exists, resolver)
			record(outcome, retried, failure)
			return nil
		})
	}

	for _, e := range zeroCandidates {
		if e.DaysUsed.IsZero() && e.HoursUsed.IsZero() {
			record(outcomeUnchanged, 0, nil)
			continue
		}
		g := &group{key: e.Key(), totals: zeroEntry(e.Key())}
		eg.Go(func() error {
			outcome, retried, failure := s.writeGroup(ctx, g, e, true, resolver)
			record(outcome, retried, failure)
			return nil
		})
	}

	_ = eg.Wait()

	sort.Slice(report.Failures, func(i, j int) bool {
		a, b := report.Failures[i], report.Failures[j]
		if a.EmployeeID != b.EmployeeID {
			return a.EmployeeID < b.EmployeeID
		}
		return a.LeaveTypeID < b.LeaveTypeID
	})
	report.FinishedAt = s.clock.Now()

	for _, f := range report.Failures {
		s.logger.WarnContext(ctx, "leave ledger group not reconciled",
			slog.String("employee_id", f.EmployeeID.String()),
			slog.String("leave_type_id", f.LeaveTypeID.String()),
			slog.String("request_id", f.RequestID.String()),
			slog.Any("error", f.Err),
		)
	}
	s.logger.InfoContext(ctx, "leave ledger reconciled",
		slog.Int("requests", report.Requests),
		slog.Int("groups", report.Groups),
		slog.Int("inserted", report.Inserted),
		slog.Int("updated", report.Updated),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("zeroed", report.Zeroed),
		slog.Int("retried", report.Retried),
		slog.Int("failed", len(report.Failures)),
		slog.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// writeGroup overwrites one entry. On a version conflict it re-reads the
// entry, then the employee's history, and tries again.
func (s *ReconcileService) writeGroup(ctx context.Context, g *group, prev leave.QuotaLedgerEntry, exists bool, resolver *resolveCache) (groupOutcome, int, *leave.GroupFailure) {
	fail := func(err error) (groupOutcome, int, *leave.GroupFailure) {
		return outcomeFailed, 0, &leave.GroupFailure{EmployeeID: g.key.EmployeeID, LeaveTypeID: g.key.LeaveTypeID, Err: err}
	}

	retried := 0
	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		var expected int64
		if exists {
			expected = prev.Version
		}

		g.totals.UpdatedAt = s.clock.Now()
		created, err := s.ledger.ReplaceEntry(ctx, g.totals, expected, g.apps)
		if err == nil {
			switch {
			case created:
				return outcomeInserted, retried, nil
			case prev.SameTotals(g.totals):
				return outcomeUnchanged, retried, nil
			case g.totals.DaysUsed.IsZero() && g.totals.HoursUsed.IsZero():
				return outcomeZeroed, retried, nil
			default:
				return outcomeUpdated, retried, nil
			}
		}
		if !errors.Is(err, leave.ErrVersionConflict) {
			outcome, _, failure := fail(err)
			return outcome, retried, failure
		}
		if retried >= s.maxRetries {
			outcome, _, failure := fail(fmt.Errorf("gave up after %d retries: %w", retried, err))
			return outcome, retried, failure
		}
		retried++

		prev, err = s.ledger.GetEntry(ctx, g.key)
		switch {
		case err == nil:
			exists = true
		case errors.Is(err, leave.ErrLedgerEntryNotFound):
			exists = false
			prev = leave.QuotaLedgerEntry{}
		default:
			outcome, _, failure := fail(err)
			return outcome, retried, failure
		}

		rows, err := s.requests.ListApprovedByEmployee(ctx, g.key.EmployeeID)
		if err != nil {
			outcome, _, failure := fail(err)
			return outcome, retried, failure
		}
		recomputed, _ := accumulate(ctx, rows, resolver)
		g = pickGroup(recomputed, g.key)
		if g.failure != nil {
			return outcomeFailed, retried, g.failure
		}
	}
}

// accumulate groups approved rows by employee and resolved leave type and
// sums their durations. Groups keep first-seen order. A row that cannot be
// resolved or measured fails its whole group; unresolved reports employees
// with rows whose leave type is unknown.
func accumulate(ctx context.Context, rows []leave.LeaveRequest, resolver *resolveCache) ([]*group, map[leave.EmployeeID]bool) {
	var order []*group
	byKey := make(map[leave.LedgerKey]*group)
	unresolved := make(map[leave.EmployeeID]bool)

	get := func(key leave.LedgerKey) *group {
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key, totals: zeroEntry(key)}
			byKey[key] = g
			order = append(order, g)
		}
		return g
	}

	for _, row := range rows {
		def, err := resolver.resolve(ctx, row.LeaveTypeID.String())
		if err != nil {
			unresolved[row.EmployeeID] = true
			g := get(leave.LedgerKey{EmployeeID: row.EmployeeID, LeaveTypeID: row.LeaveTypeID})
			if g.failure == nil {
				g.failure = &leave.GroupFailure{EmployeeID: row.EmployeeID, LeaveTypeID: row.LeaveTypeID, RequestID: row.ID, Err: err}
			}
			continue
		}

		g := get(leave.LedgerKey{EmployeeID: row.EmployeeID, LeaveTypeID: def.ID})
		if g.failure != nil {
			continue
		}
		d, err := ClassifyDuration(row, def)
		if err != nil {
			g.failure = &leave.GroupFailure{EmployeeID: row.EmployeeID, LeaveTypeID: def.ID, RequestID: row.ID, Err: err}
			continue
		}
		g.totals = g.totals.Add(d)
		g.apps = append(g.apps, leave.LedgerApplication{
			RequestID:   row.ID,
			EmployeeID:  row.EmployeeID,
			LeaveTypeID: def.ID,
			Duration:    d,
		})
	}
	return order, unresolved
}

func pickGroup(groups []*group, key leave.LedgerKey) *group {
	for _, g := range groups {
		if g.key == key {
			return g
		}
	}
	return &group{key: key, totals: zeroEntry(key)}
}

func zeroEntry(key leave.LedgerKey) leave.QuotaLedgerEntry {
	return leave.QuotaLedgerEntry{
		EmployeeID:  key.EmployeeID,
		LeaveTypeID: key.LeaveTypeID,
		DaysUsed:    decimal.Zero,
		HoursUsed:   decimal.Zero,
	}
}

// resolveCache memoises leave type lookups for one run.
type resolveCache struct {
	resolver leave.LeaveTypeResolver
	mu       sync.Mutex
	defs     map[string]leave.LeaveTypeDefinition
}

func newResolveCache(resolver leave.LeaveTypeResolver) *resolveCache {
	return &resolveCache{resolver: resolver, defs: make(map[string]leave.LeaveTypeDefinition)}
}

func (c *resolveCache) resolve(ctx context.Context, idOrLegacyName string) (leave.LeaveTypeDefinition, error) {
	c.mu.Lock()
	def, ok := c.defs[idOrLegacyName]
	c.mu.Unlock()
	if ok {
		return def, nil
	}

	def, err := c.resolver.ResolveLeaveType(ctx, idOrLegacyName)
	if err != nil {
		return leave.LeaveTypeDefinition{}, err
	}

	c.mu.Lock()
	c.defs[idOrLegacyName] = def
	c.mu.Unlock()
	return def, nil
}
