package main

import (
	"errors"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/sweeper/internal/config"
	"github.com/mattjoyce/sweeper/internal/lock"
	"github.com/mattjoyce/sweeper/internal/log"
	"github.com/mattjoyce/sweeper/internal/scheduler"
	"github.com/mattjoyce/sweeper/internal/sweep"
)

func (a *app) newScheduleCmd() *cobra.Command {
	var (
		list    bool
		runName string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the configured schedules until interrupted",
		Long: `Run every entry of the schedules section on its cron expression. A
sweep still running when its next activation arrives is skipped. Stops
on SIGINT or SIGTERM after the current sweep finishes its bookkeeping.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			jobs, err := scheduler.JobsFromConfig(cfg)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				return errors.New("no schedules configured")
			}

			svc, err := a.service(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			logger := log.Get()
			sched, err := scheduler.New(svc, jobs, logger)
			if err != nil {
				return err
			}

			switch {
			case list:
				return a.printEntries(sched.Entries())
			case runName != "":
				res, err := sched.RunNow(cmd.Context(), runName)
				var perr *sweep.PersistenceError
				if err != nil && !errors.As(err, &perr) {
					return err
				}
				if a.jsonOut {
					if jerr := a.out.JSON(res); jerr != nil {
						return jerr
					}
				} else {
					a.printRun(res)
				}
				return err
			}

			lockPath := filepath.Join(config.DataDir(), "scheduler.lock")
			pidLock, err := lock.AcquirePIDLock(lockPath)
			if err != nil {
				log.Error("failed to acquire PID lock (another scheduler may be running)", "path", lockPath, "error", err)
				return err
			}
			defer pidLock.Release()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched.Start(ctx)
			for _, e := range sched.Entries() {
				logger.Info("schedule registered", "schedule", e.Name, "cron", e.Spec, "root", e.Root, "mode", e.Mode, "next", e.Next)
			}
			<-ctx.Done()
			log.Info("shutdown signal received")
			sched.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List schedules and their next activation, then exit")
	cmd.Flags().StringVar(&runName, "run", "", "Run the named schedule once, then exit")
	return cmd
}

func (a *app) printEntries(entries []scheduler.Entry) error {
	now := time.Now()
	for i, e := range entries {
		if e.Next.IsZero() {
			if s, err := config.CronParser.Parse(e.Spec); err == nil {
				entries[i].Next = s.Next(now)
			}
		}
	}
	if a.jsonOut {
		return a.out.JSON(entries)
	}
	for _, e := range entries {
		a.out.Line("%-16s %-14s %-8s next %s  %s", e.Name, e.Spec, e.Mode, formatTime(e.Next), e.Root)
	}
	return nil
}
