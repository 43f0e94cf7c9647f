package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yourname/focustracker/internal/scheduler"
	"github.com/yourname/focustracker/internal/service"
)

func scanCmd() *cobra.Command {
	var job string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one reminder scan and print the report",
		Long: `Run the reminder scan once, synchronously.

Examples:
  focustracker scan --job hourly
  focustracker scan --job daily
  focustracker scan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			report, err := runScan(cmd.Context(), d, job)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Failed() > 0 {
				return fmt.Errorf("%d notifications could not be created", report.Failed())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&job, "job", "j", "all", "which scan to run (hourly, daily, all)")
	return cmd
}

// runScan triggers one job through the scheduler and returns its report.
func runScan(ctx context.Context, d *deps, job string) (service.ScanReport, error) {
	if job == "" {
		job = "all"
	}
	var (
		report service.ScanReport
		got    bool
	)
	sched := scheduler.New(d.clock, d.logger.With("component", "scheduler"), d.jobs(func(r service.ScanReport) {
		report, got = r, true
	})...)
	ran, err := sched.TriggerNow(ctx, job)
	if err != nil {
		return service.ScanReport{}, fmt.Errorf("%w (want hourly, daily or all)", err)
	}
	if !ran {
		return service.ScanReport{}, errors.New("another scan is already running")
	}
	if !got {
		return service.ScanReport{}, fmt.Errorf("scan %q did not finish", job)
	}
	return report, nil
}
