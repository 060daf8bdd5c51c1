package main

import (
	"context"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kjannette/optiontrack/internal/scheduler"
)

const banner = `
╔══════════════════════════════════════╗
║        OptionTrack chain tracker     ║
╚══════════════════════════════════════╝
`

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Track the chain on the fast and LEAP cadences until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Print(banner)

		a, err := newApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()
		a.cfg.Print()

		sess := a.newSession()
		sched := scheduler.NewChainScheduler(sess, scheduler.ChainSchedulerConfig{
			FastInterval: a.cfg.FastInterval,
			LeapInterval: a.cfg.LeapInterval,
			LeapEnabled:  a.cfg.LeapEnabled,
		})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sched.Start()
		log.Info("all services started")

		<-ctx.Done()
		log.Info("shutting down gracefully")
		sched.Stop()

		st := sess.Stats()
		log.WithFields(log.Fields{
			"cycles":         st.Cycles,
			"dropped":        st.Dropped,
			"failed":         st.Failed,
			"stored":         st.Stored,
			"persist_errors": st.PersistErrors,
		}).Info("shutdown complete")
		return nil
	},
}
