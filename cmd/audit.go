package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run a visibility audit for a single URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		url, _ := cmd.Flags().GetString("url")
		if url == "" {
			return eris.New("--url is required")
		}
		format, _ := cmd.Flags().GetString("output")
		save, _ := cmd.Flags().GetBool("save")

		env, err := initAudit(ctx, "audit", save)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Service.Run(ctx, url)
		if err != nil {
			return eris.Wrap(err, "audit")
		}

		zap.L().Info("audit finished",
			zap.String("url", result.Report.URLAnalyzed),
			zap.String("audit_id", result.AuditID),
			zap.String("source", result.Source),
			zap.String("archive", result.ArchivePath),
			zap.Int("fallbacks", len(result.Report.Fallbacks)),
		)

		if err := writeOutput(os.Stdout, result.Report, format); err != nil {
			return err
		}
		if result.AuditID != "" {
			fmt.Fprintf(os.Stderr, "audit id: %s\n", result.AuditID)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().String("url", "", "website URL to audit (required)")
	auditCmd.Flags().String("output", "json", "output format: json or yaml")
	auditCmd.Flags().Bool("save", true, "persist the audit and archive the raw response")
	rootCmd.AddCommand(auditCmd)
}
