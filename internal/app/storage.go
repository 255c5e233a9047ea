package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/hris-leave-go/internal/config"
	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/fixtures"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/clock"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/database"
	"github.com/cmlabs-hris/hris-leave-go/internal/repository/memory"
	"github.com/cmlabs-hris/hris-leave-go/internal/repository/postgresql"
	"github.com/cmlabs-hris/hris-leave-go/internal/repository/sqlite"
	leaveService "github.com/cmlabs-hris/hris-leave-go/internal/service/leave"
)

// Storage is the set of leave repositories backing one process.
type Storage struct {
	Driver   string
	Requests leave.RequestRepository
	Ledger   leave.LedgerRepository
	Types    leave.LeaveTypeResolver
	// Tx is nil for the memory driver.
	Tx leave.Transactor

	closers []func() error
}

// OpenStorage connects the configured driver, applies the schema and seeds the
// default leave types.
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	defaults := fixtures.DefaultLeaveTypes()

	switch cfg.Database.Driver {
	case config.DriverMemory:
		store := memory.NewStore(defaults...)
		return &Storage{
			Driver:   cfg.Database.Driver,
			Requests: store,
			Ledger:   store,
			Types:    store,
		}, nil

	case config.DriverSQLite:
		store, err := sqlite.New(cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		for _, def := range defaults {
			if err := store.SaveLeaveType(ctx, def); err != nil {
				store.Close()
				return nil, fmt.Errorf("failed to seed leave type %s: %w", def.Name, err)
			}
		}
		return &Storage{
			Driver:   cfg.Database.Driver,
			Requests: store,
			Ledger:   store,
			Types:    store,
			Tx:       store,
			closers:  []func() error{store.Close},
		}, nil

	case config.DriverPostgres:
		db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL(), database.PoolConfig{
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := postgresql.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		types := postgresql.NewLeaveTypeRepository(db)
		for _, def := range defaults {
			if err := types.Save(ctx, def); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to seed leave type %s: %w", def.Name, err)
			}
		}
		return &Storage{
			Driver:   cfg.Database.Driver,
			Requests: postgresql.NewLeaveRequestRepository(db),
			Ledger:   postgresql.NewLeaveLedgerRepository(db),
			Types:    types,
			Tx:       postgresql.NewTransactor(db),
			closers:  []func() error{func() error { db.Close(); return nil }},
		}, nil
	}

	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

func (s *Storage) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewLeaveService builds the leave core over s. events may be nil.
func NewLeaveService(cfg *config.Config, s *Storage, events leave.EventSink, logger *slog.Logger) *leaveService.LeaveServiceImpl {
	return leaveService.NewLeaveService(
		s.Requests,
		s.Ledger,
		s.Types,
		s.Tx,
		clock.NewSystem(cfg.Location()),
		events,
		logger,
		leaveService.Config{
			StorageTimeout:       cfg.Leave.StorageTimeout,
			ReconcileConcurrency: cfg.Leave.ReconcileConcurrency,
			ReconcileMaxRetries:  cfg.Leave.ReconcileMaxRetries,
		},
	)
}
