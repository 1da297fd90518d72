package main

import (
	"fmt"
	"strings"

	"github.com/FranksOps/reelrank/internal/config"
	"github.com/FranksOps/reelrank/internal/errlog"
	"github.com/FranksOps/reelrank/internal/report"
	"github.com/spf13/cobra"
)

func newErrorsCmd(a *app) *cobra.Command {
	var (
		format string
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Summarize the error log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.v.GetString(config.KeyErrorLog)
			log, err := errlog.ReadFile(path)
			if err != nil {
				return err
			}
			if log.Malformed > 0 {
				a.logger.Warn("skipped malformed error log lines", "path", path, "count", log.Malformed)
			}

			summary := report.GenerateSummary(log, runID)
			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "text", "":
				return report.WriteText(out, summary)
			case "json":
				return report.WriteJSON(out, summary)
			case "html":
				return report.WriteHTML(out, summary)
			}
			return fmt.Errorf("unknown format %q (want text, json or html)", format)
		},
	}

	cmd.Flags().String(config.KeyErrorLog, "error_log.jsonl", "error log path")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or html")
	cmd.Flags().StringVar(&runID, "run", "", "only include records from this run id")
	return cmd
}
