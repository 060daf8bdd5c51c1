package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjannette/optiontrack/internal/models"
	"github.com/kjannette/optiontrack/internal/repository"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Read stored captures",
}

var queryLatestCmd = &cobra.Command{
	Use:   "latest [date]",
	Short: "Print the most recent capture stored on a date (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date := models.MarketDate(time.Now())
		if len(args) == 1 {
			d, err := models.ParseDate(args[0])
			if err != nil {
				return fmt.Errorf("date: %w", err)
			}
			date = d
		}
		return withTable(cmd, func(ctx context.Context, t *repository.Table, format string) error {
			snap, err := t.QueryLatest(ctx, date)
			if err != nil {
				return err
			}
			cmd.Printf("%s %s from %s captured %s: spot %.2f, %d contracts\n",
				snap.Symbol, snap.Kind, snap.Source, snap.CapturedAt.Format(time.DateTime), snap.Spot, snap.ContractCount())
			return renderRows(cmd.OutOrStdout(), format, repository.FlattenSnapshot(snap, snap.CapturedAt))
		})
	},
}

var queryRangeCmd = &cobra.Command{
	Use:   "range <expiry> <start> <end>",
	Short: "Print every stored row of one expiry group between two load dates",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		expiry, start, end, err := parseRangeArgs(args)
		if err != nil {
			return err
		}
		return withTable(cmd, func(ctx context.Context, t *repository.Table, format string) error {
			rows, err := t.QueryRange(ctx, expiry, start, end)
			if err != nil {
				return err
			}
			return renderRows(cmd.OutOrStdout(), format, rows)
		})
	},
}

var queryMetricsCmd = &cobra.Command{
	Use:   "metrics <expiry> <start> <end>",
	Short: "Print the stored ATM metric series of one expiry group",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		expiry, start, end, err := parseRangeArgs(args)
		if err != nil {
			return err
		}
		return withTable(cmd, func(ctx context.Context, t *repository.Table, format string) error {
			rows, err := t.QueryMetrics(ctx, expiry, start, end)
			if err != nil {
				return err
			}
			return renderMetrics(cmd.OutOrStdout(), format, rows)
		})
	},
}

var queryRawCmd = &cobra.Command{
	Use:   "raw <select> [args...]",
	Short: "Run a read-only SELECT against one table; values are bound to '?' placeholders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		binds := make([]any, 0, len(args)-1)
		for _, a := range args[1:] {
			binds = append(binds, a)
		}
		return withTable(cmd, func(ctx context.Context, t *repository.Table, format string) error {
			rows, err := t.QueryRaw(ctx, args[0], binds...)
			if err != nil {
				return err
			}
			return renderRows(cmd.OutOrStdout(), format, rows)
		})
	},
}

func init() {
	queryCmd.PersistentFlags().String("source", "nasdaq", "source the capture came from: nasdaq or polygon")
	queryCmd.PersistentFlags().String("kind", "near", "chain kind: near or leap")
	queryCmd.PersistentFlags().String("format", "table", "output format: table, csv or json")
	queryCmd.AddCommand(queryLatestCmd, queryRangeCmd, queryMetricsCmd, queryRawCmd)
}

func withTable(cmd *cobra.Command, fn func(ctx context.Context, t *repository.Table, format string) error) error {
	source, _ := cmd.Flags().GetString("source")
	kindFlag, _ := cmd.Flags().GetString("kind")
	format, _ := cmd.Flags().GetString("format")
	kind, err := parseKind(kindFlag)
	if err != nil {
		return err
	}

	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t, err := a.store.Table(ctx, source, kind)
	if err != nil {
		return err
	}
	return fn(ctx, t, format)
}

func parseRangeArgs(args []string) (expiry, start, end time.Time, err error) {
	var out [3]time.Time
	for i, s := range args {
		if out[i], err = models.ParseDate(s); err != nil {
			return expiry, start, end, fmt.Errorf("%q: %w", s, err)
		}
	}
	if out[2].Before(out[1]) {
		return expiry, start, end, fmt.Errorf("end %s is before start %s", args[2], args[1])
	}
	return out[0], out[1], out[2], nil
}
