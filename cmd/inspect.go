package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"reflow_oven/internal/logger"
	"reflow_oven/internal/reflow"
	"reflow_oven/internal/repository"
)

func newProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Print the persisted calibration profile as JSON",
		RunE:  runProfileCmd,
	}
}

func runProfileCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Flash.Path); err != nil {
		return fmt.Errorf("profile flash %q: %w", cfg.Flash.Path, err)
	}
	flash, err := repository.OpenFileFlash(cfg.Flash.Path, cfg.Flash.Size, cfg.Flash.SectorSize)
	if err != nil {
		return fmt.Errorf("failed to open profile flash: %w", err)
	}
	defer func() { _ = flash.Close() }()

	p, err := repository.NewProfileStore(flash, cfg.Flash.ProfileOffset).Load()
	switch {
	case errors.Is(err, repository.ErrProfileBlank):
		fmt.Fprintln(cmd.OutOrStdout(), "no calibration profile stored")
		return nil
	case err != nil:
		return fmt.Errorf("failed to read profile: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func newCurvesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "curves",
		Short: "List the built-in and configured reflow curves",
		RunE:  runCurvesCmd,
	}
}

func runCurvesCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lib := reflow.NewLibrary(cfg.Curves.Dir, logger.Nop())
	if err := lib.Load(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTEPS\tPEAK °C\tDURATION\tMIN START °C")
	for _, c := range lib.List() {
		active := ""
		if c.Name == cfg.Curves.Active {
			active = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%d\t%.0f\t%s\t%.0f\n",
			c.Name, active, len(c.Steps), c.PeakTempC(), c.TotalDuration(), c.MinimumStartTempC)
	}
	return tw.Flush()
}
