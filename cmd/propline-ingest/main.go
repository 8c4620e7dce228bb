package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fortuna/propline/internal/backfill"
	"github.com/fortuna/propline/internal/config"
	"github.com/fortuna/propline/internal/logging"
	"github.com/fortuna/propline/internal/normalize"
)

const (
	appName    = "propline-ingest"
	appVersion = "1.0.0"
)

type globalFlags struct {
	dryRun   bool
	noCache  bool
	jsonOut  bool
	season   string
	logLevel string
}

func main() {
	var g globalFlags

	root := &cobra.Command{
		Use:           appName,
		Short:         "Backfill player prop lines from SportsGameOdds",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&g.dryRun, "dry-run", false, "Fetch and normalize without writing to the database")
	root.PersistentFlags().BoolVar(&g.noCache, "no-cache", false, "Bypass the Redis response cache")
	root.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "Print the run summary as JSON")
	root.PersistentFlags().StringVar(&g.season, "season", "", "Season label override (defaults to the event year)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level override")

	root.AddCommand(daysCmd(&g))
	root.AddCommand(rangeCmd(&g))
	root.AddCommand(allCmd(&g))
	root.AddCommand(seasonCmd(&g))
	root.AddCommand(normalizeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var cfgErr *backfill.ConfigurationError
		if errors.As(err, &cfgErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func daysCmd(g *globalFlags) *cobra.Command {
	var (
		league string
		days   int
	)
	cmd := &cobra.Command{
		Use:   "days",
		Short: "Ingest the last N days (today counting as day one) for one league",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), g, backfill.JobSpec{
				Type:   backfill.JobTypeDays,
				League: strings.ToUpper(league),
				Days:   days,
			})
		},
	}
	cmd.Flags().StringVar(&league, "league", "", "League code (NFL, NBA, MLB, NHL, ...)")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to look back")
	cmd.MarkFlagRequired("league")
	return cmd
}

func rangeCmd(g *globalFlags) *cobra.Command {
	var league, start, end string
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Ingest an inclusive date range for one league",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse("2006-01-02", start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			to, err := time.Parse("2006-01-02", end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
			if to.Before(from) {
				return fmt.Errorf("--end %s is before --start %s", end, start)
			}
			return run(cmd.Context(), g, backfill.JobSpec{
				Type:   backfill.JobTypeDateRange,
				League: strings.ToUpper(league),
				Start:  from,
				End:    to,
			})
		},
	}
	cmd.Flags().StringVar(&league, "league", "", "League code")
	cmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "End date (YYYY-MM-DD)")
	cmd.MarkFlagRequired("league")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func allCmd(g *globalFlags) *cobra.Command {
	var (
		days    int
		leagues []string
	)
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Ingest the last N days for every configured league",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), g, backfill.JobSpec{
				Type:    backfill.JobTypeAllLeagues,
				Leagues: leagues,
				Days:    days,
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 3, "Number of days to look back")
	cmd.Flags().StringSliceVar(&leagues, "leagues", nil, "Leagues to ingest (default INGEST_LEAGUES)")
	return cmd
}

func seasonCmd(g *globalFlags) *cobra.Command {
	var league string
	cmd := &cobra.Command{
		Use:   "season",
		Short: "Ingest a whole season for one league",
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.season == "" {
				return fmt.Errorf("--season is required")
			}
			return run(cmd.Context(), g, backfill.JobSpec{
				Type:   backfill.JobTypeSeason,
				League: strings.ToUpper(league),
			})
		},
	}
	cmd.Flags().StringVar(&league, "league", "", "League code")
	cmd.MarkFlagRequired("league")
	return cmd
}

func normalizeCmd() *cobra.Command {
	var asName bool
	cmd := &cobra.Command{
		Use:   "normalize [stat or name]...",
		Short: "Show how raw stat IDs or player names normalize",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, arg := range args {
				if asName {
					fmt.Fprintf(out, "%-32s → %s\n", arg, normalize.NormalizeHumanName(arg, normalize.NameOptions{}))
					continue
				}
				key, matched := normalize.LookupPropType(arg)
				marker := "✓"
				if !matched {
					marker = "?"
				}
				fmt.Fprintf(out, "%s %-30s → %s\n", marker, arg, key)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asName, "name", false, "Treat arguments as player names")
	return cmd
}

func run(parent context.Context, g *globalFlags, spec backfill.JobSpec) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return &backfill.ConfigurationError{Setting: "environment", Reason: err.Error()}
	}

	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	logging.Setup(level, cfg.LogFormat)

	spec.DryRun = g.dryRun
	if g.season != "" {
		spec.Season = g.season
	}

	deps, err := wire(cfg, g)
	if err != nil {
		return err
	}
	defer deps.Close()

	summary, err := deps.runner.Run(ctx, spec, newConsoleReporter(os.Stderr))
	if err != nil {
		return err
	}

	if g.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(os.Stdout, summary)
	return nil
}
