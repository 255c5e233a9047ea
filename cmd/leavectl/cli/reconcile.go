package cli

import (
	"fmt"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/spf13/cobra"
)

func newReconcileCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild the quota ledger from approved requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.service.Reconcile(cmd.Context())
			if err != nil {
				return fmt.Errorf("reconcile failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				if err := writeJSON(out, leave.NewReconcileReportResponse(report)); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Requests:  %d\n", report.Requests)
				fmt.Fprintf(out, "Groups:    %d\n", report.Groups)
				fmt.Fprintf(out, "Inserted:  %d\n", report.Inserted)
				fmt.Fprintf(out, "Updated:   %d\n", report.Updated)
				fmt.Fprintf(out, "Unchanged: %d\n", report.Unchanged)
				fmt.Fprintf(out, "Zeroed:    %d\n", report.Zeroed)
				fmt.Fprintf(out, "Retried:   %d\n", report.Retried)
				for _, f := range report.Failures {
					fmt.Fprintf(out, "FAILED %s\n", f.Error())
				}
			}

			if n := len(report.Failures); n > 0 {
				return fmt.Errorf("%d ledger groups failed to reconcile", n)
			}
			return nil
		},
	}
}
