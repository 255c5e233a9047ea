package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newLedgerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect quota ledger entries",
	}
	cmd.AddCommand(newLedgerShowCmd(opts))
	cmd.AddCommand(newLedgerRemainingCmd(opts))
	return cmd
}

func newLedgerShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <employee-id> [leave-type-id]",
		Short: "Show ledger entries of an employee",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			employeeID := leave.EmployeeID(args[0])
			var entries []leave.QuotaLedgerEntry
			if len(args) == 2 {
				entry, err := s.service.GetLedgerEntry(cmd.Context(), employeeID, leave.LeaveTypeID(args[1]))
				if err != nil {
					return err
				}
				entries = []leave.QuotaLedgerEntry{entry}
			} else {
				entries, err = s.service.ListLedgerEntries(cmd.Context(), employeeID)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				resp := make([]leave.LedgerEntryResponse, 0, len(entries))
				for _, e := range entries {
					resp = append(resp, leave.NewLedgerEntryResponse(e))
				}
				return writeJSON(out, resp)
			}

			if len(entries) == 0 {
				fmt.Fprintf(out, "No ledger entries for %s.\n", employeeID)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "LEAVE TYPE\tDAYS\tHOURS\tVERSION\tUPDATED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					e.LeaveTypeID, e.DaysUsed, e.HoursUsed, e.Version, e.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newLedgerRemainingCmd(opts *options) *cobra.Command {
	var quota, unit string
	cmd := &cobra.Command{
		Use:   "remaining <employee-id> <leave-type-id>",
		Short: "Show the quota left after recorded consumption",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(quota)
			if err != nil {
				return fmt.Errorf("invalid --quota %q: %w", quota, err)
			}

			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			positionQuota := leave.Duration{Unit: leave.Unit(unit), Amount: amount}
			remaining, err := s.service.RemainingQuota(cmd.Context(), leave.EmployeeID(args[0]), positionQuota, leave.LeaveTypeID(args[1]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, map[string]string{
					"employee_id":   args[0],
					"leave_type_id": args[1],
					"unit":          unit,
					"remaining":     remaining.String(),
				})
			}
			fmt.Fprintf(out, "%s %s remaining\n", remaining, unit)
			return nil
		},
	}
	cmd.Flags().StringVar(&quota, "quota", "", "position quota for the leave type")
	cmd.Flags().StringVar(&unit, "unit", string(leave.UnitDays), "quota unit: days or hours")
	_ = cmd.MarkFlagRequired("quota")
	return cmd
}
