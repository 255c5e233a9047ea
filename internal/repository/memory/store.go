// Package memory provides in-process leave storage for tests and single-node
// development. It does not implement leave.Transactor: approvals against it
// take the idempotent, commit-then-apply path.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu       sync.RWMutex
	requests map[leave.RequestID]leave.LeaveRequest
	entries  map[leave.LedgerKey]leave.QuotaLedgerEntry
	applied  map[leave.RequestID]leave.LedgerApplication
	types    []leave.LeaveTypeDefinition
	now      func() time.Time
}

func NewStore(types ...leave.LeaveTypeDefinition) *Store {
	return &Store{
		requests: make(map[leave.RequestID]leave.LeaveRequest),
		entries:  make(map[leave.LedgerKey]leave.QuotaLedgerEntry),
		applied:  make(map[leave.RequestID]leave.LedgerApplication),
		types:    slices.Clone(types),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source for ledger writes.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// ---- leave.RequestRepository ----

func (s *Store) GetByID(_ context.Context, id leave.RequestID) (leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return leave.LeaveRequest{}, leave.ErrLeaveRequestNotFound
	}
	return cloneRequest(r), nil
}

func (s *Store) Create(_ context.Context, request leave.LeaveRequest) (leave.LeaveRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if request.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return leave.LeaveRequest{}, err
		}
		request.ID = leave.RequestID(id.String())
	}
	s.requests[request.ID] = cloneRequest(request)
	return cloneRequest(request), nil
}

func (s *Store) Update(_ context.Context, request leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requests[request.ID]
	if !ok {
		return leave.ErrLeaveRequestNotFound
	}
	if current.Status != leave.LeaveRequestStatusPending {
		return leave.ErrInvalidTransition
	}
	request.Status = current.Status
	request.CreatedAt = current.CreatedAt
	request.CreatedBy = current.CreatedBy
	s.requests[request.ID] = cloneRequest(request)
	return nil
}

func (s *Store) Transition(_ context.Context, request leave.LeaveRequest, from leave.LeaveRequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requests[request.ID]
	if !ok {
		return leave.ErrLeaveRequestNotFound
	}
	if current.Status != from {
		return leave.ErrInvalidTransition
	}
	s.requests[request.ID] = cloneRequest(request)
	return nil
}

func (s *Store) Delete(_ context.Context, id leave.RequestID, allowed []leave.LeaveRequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requests[id]
	if !ok {
		return leave.ErrLeaveRequestNotFound
	}
	if !slices.Contains(allowed, current.Status) {
		return leave.ErrInvalidTransition
	}
	delete(s.requests, id)
	return nil
}

func (s *Store) ListApproved(_ context.Context) ([]leave.LeaveRequest, error) {
	return s.listApproved(func(leave.LeaveRequest) bool { return true }), nil
}

func (s *Store) ListApprovedByEmployee(_ context.Context, employeeID leave.EmployeeID) ([]leave.LeaveRequest, error) {
	return s.listApproved(func(r leave.LeaveRequest) bool { return r.EmployeeID == employeeID }), nil
}

func (s *Store) listApproved(keep func(leave.LeaveRequest) bool) []leave.LeaveRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []leave.LeaveRequest
	for _, r := range s.requests {
		if r.Status == leave.LeaveRequestStatusApproved && keep(r) {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ---- leave.LedgerRepository ----

func (s *Store) GetEntry(_ context.Context, key leave.LedgerKey) (leave.QuotaLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return leave.QuotaLedgerEntry{}, leave.ErrLedgerEntryNotFound
	}
	return e, nil
}

func (s *Store) ListEntries(_ context.Context) ([]leave.QuotaLedgerEntry, error) {
	return s.listEntries(func(leave.QuotaLedgerEntry) bool { return true }), nil
}

func (s *Store) ListByEmployee(_ context.Context, employeeID leave.EmployeeID) ([]leave.QuotaLedgerEntry, error) {
	return s.listEntries(func(e leave.QuotaLedgerEntry) bool { return e.EmployeeID == employeeID }), nil
}

func (s *Store) listEntries(keep func(leave.QuotaLedgerEntry) bool) []leave.QuotaLedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []leave.QuotaLedgerEntry
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmployeeID != out[j].EmployeeID {
			return out[i].EmployeeID < out[j].EmployeeID
		}
		return out[i].LeaveTypeID < out[j].LeaveTypeID
	})
	return out
}

func (s *Store) ApplyConsumption(_ context.Context, app leave.LedgerApplication) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.applied[app.RequestID]; done {
		return false, nil
	}

	key := leave.LedgerKey{EmployeeID: app.EmployeeID, LeaveTypeID: app.LeaveTypeID}
	entry, ok := s.entries[key]
	if !ok {
		entry = leave.QuotaLedgerEntry{
			EmployeeID:  app.EmployeeID,
			LeaveTypeID: app.LeaveTypeID,
			DaysUsed:    decimal.Zero,
			HoursUsed:   decimal.Zero,
		}
	}
	entry = entry.Add(app.Duration)
	entry.Version++
	entry.UpdatedAt = s.now()
	s.entries[key] = entry

	if app.AppliedAt.IsZero() {
		app.AppliedAt = entry.UpdatedAt
	}
	s.applied[app.RequestID] = app
	return true, nil
}

func (s *Store) ReplaceEntry(_ context.Context, entry leave.QuotaLedgerEntry, expectedVersion int64, apps []leave.LedgerApplication) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entry.Key()
	current, exists := s.entries[key]
	if (exists && current.Version != expectedVersion) || (!exists && expectedVersion != 0) {
		return false, leave.ErrVersionConflict
	}

	entry.Version = expectedVersion + 1
	entry.UpdatedAt = s.now()
	s.entries[key] = entry

	for _, app := range apps {
		if _, done := s.applied[app.RequestID]; done {
			continue
		}
		if app.AppliedAt.IsZero() {
			app.AppliedAt = entry.UpdatedAt
		}
		s.applied[app.RequestID] = app
	}
	return !exists, nil
}

// IsApplied reports whether requestID has been counted in the ledger.
func (s *Store) IsApplied(requestID leave.RequestID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.applied[requestID]
	return ok
}

// ---- leave.LeaveTypeResolver ----

// ResolveLeaveType matches by id first. A uuid with no matching id is not
// found; any other value falls back to a case-insensitive match against the
// name, the code and the legacy names.
func (s *Store) ResolveLeaveType(_ context.Context, idOrLegacyName string) (leave.LeaveTypeDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value := strings.TrimSpace(idOrLegacyName)
	if value == "" {
		return leave.LeaveTypeDefinition{}, leave.ErrLeaveTypeNotFound
	}

	for _, def := range s.types {
		if string(def.ID) == value {
			return def, nil
		}
	}
	if _, err := uuid.Parse(value); err == nil {
		return leave.LeaveTypeDefinition{}, leave.ErrLeaveTypeNotFound
	}

	for _, def := range s.types {
		if matchesLegacyName(def, value) {
			return def, nil
		}
	}
	return leave.LeaveTypeDefinition{}, leave.ErrLeaveTypeNotFound
}

func matchesLegacyName(def leave.LeaveTypeDefinition, value string) bool {
	if strings.EqualFold(def.Name, value) {
		return true
	}
	if def.Code != nil && strings.EqualFold(*def.Code, value) {
		return true
	}
	for _, legacy := range def.LegacyNames {
		if strings.EqualFold(strings.TrimSpace(legacy), value) {
			return true
		}
	}
	return false
}

func cloneRequest(r leave.LeaveRequest) leave.LeaveRequest {
	r.Attachments = slices.Clone(r.Attachments)
	return r
}
