package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/aeo-cli/internal/audit"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Audit every URL listed in a file",
	Long:  "Reads one URL per line (blank lines and # comments are skipped; for CSV input the first column is used) and audits them concurrently.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return eris.New("--file is required")
		}
		limit, _ := cmd.Flags().GetInt("limit")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency > 0 {
			cfg.Batch.MaxConcurrent = concurrency
		}

		f, err := os.Open(file)
		if err != nil {
			return eris.Wrapf(err, "open %s", file)
		}
		defer f.Close() //nolint:errcheck

		urls, err := readURLs(f)
		if err != nil {
			return err
		}

		env, err := initAudit(ctx, "batch", true)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := processBatch(ctx, urls, limit, cfg.Batch.MaxConcurrent, func(ctx context.Context, url string) (*audit.Result, error) {
			return env.Service.Run(ctx, url)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Batch complete: %d succeeded, %d failed\n", summary.Succeeded, summary.Failed)
		return nil
	},
}

func init() {
	batchCmd.Flags().String("file", "", "file with one URL per line (required)")
	batchCmd.Flags().Int("limit", 0, "max number of URLs to audit (0 = all)")
	batchCmd.Flags().Int("concurrency", 0, "concurrent audits (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// readURLs returns the distinct URLs in r, in order of first appearance.
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	seen := make(map[string]bool)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, ','); i >= 0 {
			line = strings.Trim(strings.TrimSpace(line[:i]), `"`)
		}
		if line == "" || strings.EqualFold(line, "url") || seen[line] {
			continue
		}
		seen[line] = true
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read urls")
	}
	return urls, nil
}

// auditFunc runs one audit.
type auditFunc func(ctx context.Context, url string) (*audit.Result, error)

// batchSummary counts batch outcomes.
type batchSummary struct {
	Succeeded int64
	Failed    int64
}

// processBatch applies limit, then audits urls concurrently. Individual
// failures are logged and counted; they do not stop the batch.
func processBatch(ctx context.Context, urls []string, limit, concurrency int, run auditFunc) (batchSummary, error) {
	if len(urls) == 0 {
		zap.L().Info("no urls to audit")
		return batchSummary{}, nil
	}

	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("urls", len(urls)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, url := range urls {
		g.Go(func() error {
			log := zap.L().With(zap.String("url", url))

			result, err := run(gctx, url)
			if err != nil {
				failed.Add(1)
				log.Error("audit failed", zap.Error(err), zap.NamedError("stage", audit.KindOf(err)))
				return nil
			}

			succeeded.Add(1)
			log.Info("audit complete",
				zap.String("audit_id", result.AuditID),
				zap.Int("overall_score", result.Report.Scorecard.OverallScore),
				zap.Int("fallbacks", len(result.Report.Fallbacks)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return batchSummary{}, eris.Wrap(err, "batch processing")
	}

	summary := batchSummary{Succeeded: succeeded.Load(), Failed: failed.Load()}
	zap.L().Info("batch complete",
		zap.Int64("succeeded", summary.Succeeded),
		zap.Int64("failed", summary.Failed),
	)
	return summary, nil
}
