package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/david/market-ledger/internal/ingest"
	"github.com/david/market-ledger/internal/models"
	"github.com/david/market-ledger/internal/run"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

func printRunSummary(w io.Writer, rep *run.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Run " + rep.RunID)
	t.AppendHeader(table.Row{"Jurisdiction", "Strategy", "Records", "Fallback", "Duration", "Error"})
	for _, res := range rep.Results {
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		t.AppendRow(table.Row{res.Jurisdiction, res.Strategy, len(res.Opportunities), res.Fallback, res.Duration.Round(time.Millisecond), errText})
	}
	t.Render()

	fmt.Fprintln(w)
	printDocumentSummary(w, rep.Document)
}

func printDocumentSummary(w io.Writer, doc models.Document) {
	s := doc.Summary
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Ledger " + doc.Generated)
	t.AppendRows([]table.Row{
		{"Total opportunities", s.TotalOpportunities},
		{"DOT lettings", s.ByCategory.DotLetting},
		{"News", s.ByCategory.News},
		{"Funding", s.ByCategory.Funding},
		{"Pipeline value", ingest.FormatAmountRange(s.TotalValueLow, s.TotalValueHigh)},
		{"Pipeline (exact)", "$" + humanize.Comma(s.TotalValueLow)},
		{"Market health", fmt.Sprintf("%.1f (%s)", doc.MarketHealth.OverallScore, doc.MarketHealth.OverallStatus)},
	})
	t.Render()

	states := make([]string, 0, len(s.ByState))
	for code := range s.ByState {
		states = append(states, code)
	}
	sort.Strings(states)

	byState := table.NewWriter()
	byState.SetOutputMirror(w)
	byState.AppendHeader(table.Row{"State", "Records"})
	for _, code := range states {
		byState.AppendRow(table.Row{code, s.ByState[code]})
	}
	byState.Render()

	keys := make([]string, 0, len(doc.MarketHealth.Metrics))
	for key := range doc.MarketHealth.Metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	metrics := table.NewWriter()
	metrics.SetOutputMirror(w)
	metrics.AppendHeader(table.Row{"Metric", "Score", "Trend", "Action"})
	for _, key := range keys {
		m := doc.MarketHealth.Metrics[key]
		metrics.AppendRow(table.Row{key, fmt.Sprintf("%.1f", m.Score), m.Trend, m.Action})
	}
	metrics.Render()
}
