package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/sweeper/internal/doctor"
)

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(a.newConfigShowCmd(), a.newConfigCheckCmd())
	return cmd
}

func (a *app) newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.out.JSON(cfg)
			}
			if cfg.SourceFile != "" {
				a.out.Dim("# %s", cfg.SourceFile)
			} else {
				a.out.Dim("# built-in defaults")
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
}

func (a *app) newConfigCheckCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and report errors and warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			r := doctor.New(cfg).Validate(cmd.Context())

			if a.jsonOut {
				out, err := doctor.FormatJSON(r)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, out)
			} else {
				fmt.Fprint(a.stdout, doctor.FormatHuman(r))
			}

			switch {
			case !r.Valid:
				return fmt.Errorf("configuration invalid: %d error(s)", len(r.Errors))
			case strict && len(r.Warnings) > 0:
				return errors.New("configuration has warnings (--strict)")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	return cmd
}
