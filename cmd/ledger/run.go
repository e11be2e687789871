package main

import (
	"fmt"
	"os"

	"github.com/david/market-ledger/internal/ingest"
	"github.com/david/market-ledger/internal/report"
	"github.com/spf13/cobra"
)

var (
	runOut     string
	runOnly    string
	runNoNews  bool
	runNoStore bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one extraction and publish the ledger document",
	Long: `Fetches every configured jurisdiction in parallel, collects regional news,
scores market health and writes the document. A jurisdiction that cannot be
read is represented by a single portal record; the run itself only fails on
configuration errors or when the document cannot be written.`,
	RunE: runLedger,
}

func init() {
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "Output path (default from config: data/necmis_data.json)")
	runCmd.Flags().StringVar(&runOnly, "only", "", "Comma-separated jurisdiction codes, e.g. VT,NH")
	runCmd.Flags().BoolVar(&runNoNews, "no-news", false, "Skip the news feeds")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "Do not publish to the database even if one is configured")
	rootCmd.AddCommand(runCmd)
}

func fileSink(path string) report.FileSink {
	return report.FileSink{Path: path}
}

func runLedger(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, !runNoStore)
	if err != nil {
		return err
	}
	defer a.Close()

	out := runOut
	if out == "" {
		out = a.cfg.Run.Output
	}
	codes := ingest.SplitCodes(runOnly)
	if len(codes) == 0 {
		codes = a.cfg.Run.Only
	}

	rep, err := a.runner(out, a.cfg.Run.News && !runNoNews).Run(ctx, codes)
	if err != nil {
		return err
	}

	printRunSummary(os.Stdout, rep)
	fmt.Fprintf(os.Stdout, "\nDocument written to %s\n", out)
	return nil
}
