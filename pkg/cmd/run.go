package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func NewRunCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Perform a single ingestion invocation",
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

			res, err := p.Run(ctx)
			if err != nil {
				return err
			}
			logResult(rt.Logger(), res)

			switch outputFormat {
			case "json":
				encoder := json.NewEncoder(rt.Writer())
				encoder.SetIndent("", "  ")
				return encoder.Encode(res)
			default:
				_, _ = fmt.Fprintf(rt.Writer(), "forwarded %d of %d records (%d blobs)\n",
					res.RecordsForwarded, res.RecordsFetched, res.BlobsListed)
				return nil
			}
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: json")

	return cmd
}
