package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/aeo-cli/internal/metrics"
	"github.com/sells-group/aeo-cli/internal/model"
	"github.com/sells-group/aeo-cli/internal/store"
	"github.com/sells-group/aeo-cli/pkg/anthropic"
)

var auditsCmd = &cobra.Command{
	Use:   "audits",
	Short: "Inspect stored audits",
	Long:  "Commands for listing, viewing, and summarizing persisted audits.",
}

// -- audits list --

var auditsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audits",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		url, _ := cmd.Flags().GetString("url")
		limit, _ := cmd.Flags().GetInt("limit")

		audits, err := st.ListAudits(ctx, store.AuditFilter{
			Status: model.AuditStatus(status),
			URL:    url,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "audits list")
		}

		if len(audits) == 0 {
			fmt.Fprintln(os.Stderr, "No audits found.")
			return nil
		}

		formatAuditsList(os.Stdout, audits)
		return nil
	},
}

// -- audits show --

var auditsShowCmd = &cobra.Command{
	Use:   "show <audit-id>",
	Short: "Show a stored audit with its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := st.GetAudit(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "audits show")
		}

		format, _ := cmd.Flags().GetString("output")
		return writeOutput(os.Stdout, a, format)
	},
}

// -- audits stats --

var auditsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate audit statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		snap, err := metrics.NewCollector(st, estimateCost).Collect(ctx, int(since.Hours()))
		if err != nil {
			return eris.Wrap(err, "audits stats")
		}

		formatAuditStats(os.Stdout, snap)
		return nil
	},
}

func init() {
	auditsListCmd.Flags().String("status", "", "filter by status (queued, scraping, analyzing, complete, failed)")
	auditsListCmd.Flags().String("url", "", "filter by audited URL")
	auditsListCmd.Flags().Int("limit", 50, "max number of audits to display")

	auditsShowCmd.Flags().String("output", "json", "output format: json or yaml")

	auditsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 168h; 0 for all)")

	auditsCmd.AddCommand(auditsListCmd)
	auditsCmd.AddCommand(auditsShowCmd)
	auditsCmd.AddCommand(auditsStatsCmd)
	rootCmd.AddCommand(auditsCmd)
}

// estimateCost prices stored token counts with the Anthropic price table.
func estimateCost(modelID string, input, output int64) float64 {
	return anthropic.TokenUsage{InputTokens: input, OutputTokens: output}.EstimateCost(modelID)
}

// formatAuditsList writes a tabular list of audits to w.
func formatAuditsList(out io.Writer, audits []model.Audit) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tURL\tSTATUS\tSCORE\tFALLBACKS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t---\t------\t-----\t---------\t-------\t--------")

	for _, a := range audits {
		dur := a.UpdatedAt.Sub(a.CreatedAt).Round(time.Second).String()

		score, fallbacks := "-", "-"
		if a.Report != nil {
			score = fmt.Sprintf("%d", a.Report.Scorecard.OverallScore)
			fallbacks = fmt.Sprintf("%d", len(a.Report.Fallbacks))
		}

		url := a.URL
		if len(url) > 40 {
			url = url[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(a.ID),
			url,
			a.Status,
			score,
			fallbacks,
			a.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatAuditStats writes aggregate stats to w.
func formatAuditStats(out io.Writer, s *metrics.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total audits:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d (%.1f%%)\n", s.Failed, s.FailRate*100)
	_, _ = fmt.Fprintf(w, "Pending:\t%d\n", s.Pending)
	if s.Complete > 0 {
		_, _ = fmt.Fprintf(w, "Avg overall score:\t%.1f\n", s.AvgOverallScore)
		_, _ = fmt.Fprintf(w, "Avg citation lift:\t%.1f\n", s.AvgCitationLift)
		_, _ = fmt.Fprintf(w, "Fallback rate:\t%.1f%%\n", s.FallbackRate*100)
	}
	if top := s.TopFallbacks(); len(top) > 0 {
		parts := make([]string, 0, len(top))
		for _, p := range top {
			parts = append(parts, fmt.Sprintf("%s=%d", p, s.FallbackPaths[p]))
		}
		_, _ = fmt.Fprintf(w, "Synthesized fields:\t%s\n", strings.Join(parts, ", "))
	}
	_, _ = fmt.Fprintf(w, "Tokens (in/out):\t%d/%d\n", s.InputTokens, s.OutputTokens)
	_, _ = fmt.Fprintf(w, "Estimated cost:\t$%.4f\n", s.CostUSD)
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
