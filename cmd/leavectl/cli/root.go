// Package cli implements leavectl, the operator tool for the leave ledger.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cmlabs-hris/hris-leave-go/internal/app"
	"github.com/cmlabs-hris/hris-leave-go/internal/config"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/logger"
	leaveService "github.com/cmlabs-hris/hris-leave-go/internal/service/leave"
	"github.com/spf13/cobra"
)

type options struct {
	jsonOutput bool
	logLevel   string
}

// NewRootCmd builds the leavectl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "leavectl",
		Short: "Operate the HRIS leave ledger",
		Long: `leavectl inspects and repairs the leave quota ledger.
Storage and Redis settings come from the same environment as the API.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of text")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(newReconcileCmd(opts))
	root.AddCommand(newLedgerCmd(opts))
	root.AddCommand(newJobsCmd(opts))
	return root
}

// Execute is the entry point called from main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// session is an opened leave core for one command run.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	storage *app.Storage
	service *leaveService.LeaveServiceImpl
}

func openSession(ctx context.Context, cmd *cobra.Command, opts *options) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), "leavectl", cfg.App.Env, opts.logLevel)

	storage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:     cfg,
		logger:  log,
		storage: storage,
		service: app.NewLeaveService(cfg, storage, nil, log),
	}, nil
}

func (s *session) Close() error {
	return s.storage.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
