package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "optiontrack",
	Short:         "Track one underlying's option chain, implied volatility and expected move",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().String("symbol", "", "underlying to track (overrides SYMBOL)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(runCmd, fetchCmd, queryCmd, drillDownCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Errorf("Error: %v", err)
		os.Exit(1)
	}
}
