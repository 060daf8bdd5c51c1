package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kjannette/optiontrack/internal/repository"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one fetch cycle and print the per-expiry metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		kindFlag, _ := cmd.Flags().GetString("kind")
		kind, err := parseKind(kindFlag)
		if err != nil {
			return err
		}
		store, _ := cmd.Flags().GetBool("store")
		format, _ := cmd.Flags().GetString("format")

		a, err := newApp(cmd, store)
		if err != nil {
			return err
		}
		defer a.Close()

		sess := a.newSession()
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		sess.Trigger(ctx, kind)

		view, ok := sess.Latest(kind)
		if !ok {
			if view.LastFailure != nil {
				return view.LastFailure.Err
			}
			return fmt.Errorf("no %s chain captured", kind)
		}

		snap := view.Snapshot
		cmd.Printf("%s %s chain from %s: spot %.2f, prev close %.2f, market %s, %d contracts\n",
			snap.Symbol, snap.Kind, snap.Source, snap.Spot, snap.PreviousClose, snap.MarketStatus, snap.ContractCount())
		return renderMetrics(cmd.OutOrStdout(), format, repository.FlattenMetrics(view.Metrics, snap.Spot, snap.CapturedAt))
	},
}

func init() {
	fetchCmd.Flags().String("kind", "near", "chain kind: near or leap")
	fetchCmd.Flags().Bool("store", false, "hand the capture to the gated store")
	fetchCmd.Flags().String("format", "table", "output format: table, csv or json")
}
