package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var drillDownCmd = &cobra.Command{
	Use:   "drilldown <url>",
	Short: "Download the price-history chart linked from a contract row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPTimeout)
		defer cancel()

		img, err := a.nasdaq.FetchDrillDown(ctx, args[0])
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, img, 0o644); err != nil {
			return err
		}
		cmd.Printf("wrote %d bytes to %s\n", len(img), out)
		return nil
	},
}

func init() {
	drillDownCmd.Flags().StringP("out", "o", "drilldown.png", "output file")
}
