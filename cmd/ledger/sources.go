package main

import (
	"io"

	"github.com/david/market-ledger/internal/ingest"
	"github.com/david/market-ledger/internal/news"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var sourcesRegistry, sourcesFeeds string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured jurisdictions and news feeds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := ingest.LoadRegistry(sourcesRegistry)
		if err != nil {
			return err
		}
		feeds, err := news.LoadConfig(sourcesFeeds)
		if err != nil {
			return err
		}
		renderSources(cmd.OutOrStdout(), reg, feeds)
		return nil
	},
}

func init() {
	sourcesCmd.Flags().StringVar(&sourcesRegistry, "registry", "", "Jurisdiction registry file (default: embedded)")
	sourcesCmd.Flags().StringVar(&sourcesFeeds, "feeds", "", "News feed config file (default: embedded)")
	rootCmd.AddCommand(sourcesCmd)
}

func renderSources(w io.Writer, reg *ingest.Registry, feeds *news.Config) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Jurisdictions")
	t.AppendHeader(table.Row{"Code", "Name", "Format", "Engine", "Strategies", "Updates", "Bid URL"})
	for _, j := range reg.Jurisdictions {
		t.AppendRow(table.Row{j.Code, j.Name, j.Format, j.Engine, len(j.Extraction.Strategies), j.UpdateFreq, j.BidURL})
	}
	t.Render()

	f := table.NewWriter()
	f.SetOutputMirror(w)
	f.SetTitle("News feeds")
	f.AppendHeader(table.Row{"Name", "State", "Focus", "URL"})
	for _, feed := range feeds.Feeds {
		f.AppendRow(table.Row{feed.Name, feed.State, feed.Focus, feed.URL})
	}
	f.Render()
}
