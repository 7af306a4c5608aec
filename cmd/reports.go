package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-research/internal/model"
	"github.com/sells-group/outreach-research/internal/store"
)

var (
	reportsStatus    string
	reportsCompanyID string
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect stored research reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports, optionally filtered by status or company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := env.Store.ListReports(ctx, store.ReportFilter{
			Status:    model.ReportStatus(reportsStatus),
			CompanyID: reportsCompanyID,
		})
		if err != nil {
			return eris.Wrap(err, "reports: list")
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPERSON\tCOMPANY\tSTATUS\tTEMPLATE\tCOST")
		for _, r := range reports {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t$%.4f\n",
				r.ID, r.PersonName, r.CompanyName, r.Status, r.SelectedTemplate, r.Cost.CostUSD)
		}
		return tw.Flush()
	},
}

var reportsGetCmd = &cobra.Command{
	Use:   "get <report-id>",
	Short: "Print one report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Store.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reports: get")
		}
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return eris.Wrap(err, "reports: marshal")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	reportsListCmd.Flags().StringVar(&reportsStatus, "status", "", "filter by status")
	reportsListCmd.Flags().StringVar(&reportsCompanyID, "company-id", "", "filter by company")
	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsGetCmd)
	rootCmd.AddCommand(reportsCmd)
}
