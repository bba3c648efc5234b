package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/aeo-cli/internal/normalize"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [file|-]",
	Short: "Normalize a saved model response into a report",
	Long:  "Reads a raw model response (text or JSON) from a file or stdin and prints the normalized report.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("normalize"); err != nil {
			return err
		}

		url, _ := cmd.Flags().GetString("url")
		format, _ := cmd.Flags().GetString("output")

		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		raw, err := readInput(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}

		engine := normalize.New(normalize.WithPreviewLength(cfg.Normalize.PreviewChars))
		report, err := engine.NormalizeString(string(raw), url)
		if err != nil {
			return eris.Wrap(err, "normalize")
		}
		return writeOutput(cmd.OutOrStdout(), report, format)
	},
}

// readInput reads path, or stdin when path is "-".
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, eris.Wrap(err, "read stdin")
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return data, nil
}

func init() {
	normalizeCmd.Flags().String("url", "", "URL the response was produced for (seeds synthesized values)")
	normalizeCmd.Flags().String("output", "json", "output format: json or yaml")
	rootCmd.AddCommand(normalizeCmd)
}
