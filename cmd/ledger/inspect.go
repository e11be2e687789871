package main

import (
	"fmt"

	"github.com/david/market-ledger/internal/report"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var inspectLimit int

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Validate and summarize a written ledger document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := report.ReadFile(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if err := report.Validate(doc); err != nil {
			fmt.Fprintf(w, "Schema: INVALID\n%v\n\n", err)
		} else {
			fmt.Fprintf(w, "Schema: valid\n\n")
		}
		printDocumentSummary(w, doc)

		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetTitle("Lettings")
		t.AppendHeader(table.Row{"ID", "State", "Cost", "Let date", "Lines", "Description"})
		for i, opp := range doc.DotLettings {
			if inspectLimit > 0 && i >= inspectLimit {
				break
			}
			letDate := ""
			if opp.LetDate != nil {
				letDate = *opp.LetDate
			}
			t.AppendRow(table.Row{opp.ID, opp.Jurisdiction, opp.CostDisplay, letDate, opp.BusinessLines, opp.Description})
		}
		t.Render()
		return nil
	},
}

func init() {
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 25, "Maximum lettings to list (0 = all)")
	rootCmd.AddCommand(inspectCmd)
}
