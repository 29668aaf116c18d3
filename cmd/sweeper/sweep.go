package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/sweeper/internal/dispose"
	"github.com/mattjoyce/sweeper/internal/sweep"
	"github.com/mattjoyce/sweeper/internal/volume"
)

func (a *app) newPreviewCmd() *cobra.Command {
	var crit criteriaFlags
	cmd := &cobra.Command{
		Use:   "preview [root]",
		Short: "List the files a clean would dispose of",
		Long: `List the files under root (default ~/Downloads) that match the
selection criteria. Nothing is moved or recorded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			c, err := crit.resolve(cmd, cfg)
			if err != nil {
				return err
			}
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			p, err := svc.Preview(cmd.Context(), root, c)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.out.JSON(p)
			}
			if p.Count == 0 {
				a.out.OK("Nothing to sweep under %s", p.Root)
				return nil
			}
			a.out.Title("%d file(s) would be swept under %s", p.Count, p.Root)
			for _, f := range p.Files {
				a.out.Line("  %s", f)
			}
			return nil
		},
	}
	crit.register(cmd)
	return cmd
}

func (a *app) newCleanCmd() *cobra.Command {
	var (
		crit    criteriaFlags
		archive bool
	)
	cmd := &cobra.Command{
		Use:   "clean [root]",
		Short: "Move matching files to the trash or the archive folder",
		Long: `Dispose of every file under root (default ~/Downloads) that matches the
selection criteria. Files go to the trash unless --archive is given, in
which case they are moved into the root's archive folder. Each disposal
is appended to the root's audit log and added to the summary.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			c, err := crit.resolve(cmd, cfg)
			if err != nil {
				return err
			}
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			mode := dispose.Delete
			if archive {
				mode = dispose.Archive
			}

			svc, err := a.service(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.Clean(cmd.Context(), root, c, mode)
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
			if err != nil {
				return err
			}
			if n := len(res.Failed); n > 0 {
				return fmt.Errorf("%d file(s) could not be %s", n, res.Mode)
			}
			return nil
		},
	}
	crit.register(cmd)
	cmd.Flags().BoolVar(&archive, "archive", false, "Move files into the archive folder instead of the trash")
	return cmd
}

func (a *app) printRun(res sweep.RunResult) {
	if res.Count == 0 && len(res.Failed) == 0 {
		a.out.OK("Nothing to sweep under %s", res.Root)
		return
	}
	a.out.Title("%s %d file(s), %s under %s", capitalize(res.Mode), res.Count, bytesHuman(res.Bytes), res.Root)
	for _, f := range res.Failed {
		a.out.Error("  failed: %s: %s", f.Path, f.Error)
	}
	a.out.Dim("run %s", res.RunID)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (a *app) newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the archive folder",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list [root]",
		Short: "List files in the root's archive folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			l, err := svc.ListArchive(root)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.out.JSON(l)
			}
			if !l.Found {
				a.out.Warn("%s", l.Message)
				return nil
			}
			a.out.Title("%d archived file(s) under %s", l.Count, l.Root)
			for _, f := range l.Files {
				a.out.Line("  %s", f)
			}
			return nil
		},
	})
	return cmd
}

func (a *app) newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs [root]",
		Short: "Show the root's audit log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			l, err := svc.ReadAuditLog(root)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.out.JSON(l)
			}
			if !l.Found {
				a.out.Warn("%s", l.Message)
				return nil
			}
			for _, line := range l.Lines {
				a.out.Line("%s", line)
			}
			return nil
		},
	}
}

type summaryOutput struct {
	TotalSize  int64    `json:"total_size"`
	TotalFiles int64    `json:"total_files"`
	Runs       []runRow `json:"runs,omitempty"`
}

func (a *app) newSummaryCmd() *cobra.Command {
	var runs int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the cumulative bytes and files swept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			rec, err := svc.ReadSummary(cmd.Context())
			if err != nil {
				return err
			}
			out := summaryOutput{TotalSize: rec.TotalSize, TotalFiles: rec.TotalFiles}

			var history []runRow
			if runs > 0 {
				recent, ok, err := svc.RecentRuns(cmd.Context(), runs)
				if err != nil {
					return err
				}
				if !ok {
					a.out.Dim("run history requires summary.backend: sqlite")
				}
				for _, r := range recent {
					history = append(history, runRow{ID: r.ID, Root: r.Root, Mode: r.Mode, Files: r.Files, Bytes: r.Bytes, At: r.RecordedAt.UTC().Format("2006-01-02T15:04:05Z")})
				}
				out.Runs = history
			}

			if a.jsonOut {
				return a.out.JSON(out)
			}
			a.out.Title("Swept %d file(s), %s in total", rec.TotalFiles, bytesHuman(rec.TotalSize))
			for _, r := range history {
				a.out.Line("  %s  %-8s %5d file(s) %10s  %s", r.At, r.Mode, r.Files, bytesHuman(r.Bytes), r.Root)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&runs, "runs", 0, "Also list the N most recent runs (sqlite backend)")
	return cmd
}

type runRow struct {
	ID    string `json:"id"`
	Root  string `json:"root"`
	Mode  string `json:"mode"`
	Files int64  `json:"files"`
	Bytes int64  `json:"bytes"`
	At    string `json:"recorded_at"`
}

type statusOutput struct {
	Root       string       `json:"root"`
	Volume     volume.Usage `json:"volume"`
	Pending    int          `json:"pending"`
	Archived   int          `json:"archived"`
	TotalSize  int64        `json:"total_size"`
	TotalFiles int64        `json:"total_files"`
}

func (a *app) newStatusCmd() *cobra.Command {
	var crit criteriaFlags
	cmd := &cobra.Command{
		Use:   "status [root]",
		Short: "Show volume usage, pending files and the summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			c, err := crit.resolve(cmd, cfg)
			if err != nil {
				return err
			}
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			p, err := svc.Preview(ctx, root, c)
			if err != nil {
				return err
			}
			usage, err := volume.Of(ctx, root)
			if err != nil {
				return err
			}
			listing, err := svc.ListArchive(root)
			if err != nil {
				return err
			}
			rec, err := svc.ReadSummary(ctx)
			if err != nil {
				return err
			}

			out := statusOutput{
				Root:       p.Root,
				Volume:     usage,
				Pending:    p.Count,
				Archived:   listing.Count,
				TotalSize:  rec.TotalSize,
				TotalFiles: rec.TotalFiles,
			}
			if a.jsonOut {
				return a.out.JSON(out)
			}
			a.out.Title("%s", out.Root)
			line := fmt.Sprintf("  volume   %s free of %s (%.1f%% used, %s)",
				humanize.Bytes(usage.Free), humanize.Bytes(usage.Total), usage.UsedPercent, usage.Fstype)
			if usage.UsedPercent >= 90 {
				a.out.Warn("%s", line)
			} else {
				a.out.Line("%s", line)
			}
			a.out.Line("  pending  %d file(s)", out.Pending)
			a.out.Line("  archived %d file(s)", out.Archived)
			a.out.Line("  swept    %d file(s), %s in total", out.TotalFiles, bytesHuman(out.TotalSize))
			return nil
		},
	}
	crit.register(cmd)
	return cmd
}
