package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/m365-audit-ingest/pkg/notify"
	"github.com/telekom/m365-audit-ingest/pkg/pipeline"
	"github.com/telekom/m365-audit-ingest/pkg/server"
)

func NewServeCommand() *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run ingestion on an interval with operational endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, rt)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			var notifier pipeline.Notifier
			failureThreshold := 0
			if rt.cfg.Mail != nil {
				mailer, err := notify.NewMailer(*rt.cfg.Mail, rt.Logger())
				if err != nil {
					return err
				}
				notifier = mailer
				failureThreshold = rt.cfg.Mail.FailureThreshold
			}

			if interval <= 0 {
				interval = rt.cfg.Serve.Interval
			}
			if addr == "" {
				addr = rt.cfg.Serve.Addr
			}

			runner := pipeline.NewRunner(p, interval, notifier, failureThreshold, rt.Logger())
			srv := server.New(addr, runner, rt.debug, rt.Logger())

			go runner.Run(ctx)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address for operational endpoints")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Time between invocations")

	return cmd
}
