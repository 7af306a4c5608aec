package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-research/internal/model"
	"github.com/sells-group/outreach-research/internal/pipeline"
)

var (
	runPersonID    string
	runPersonName  string
	runCompanyID   string
	runCompanyName string
	runCompanyURL  string
	runUserID      string
	runWait        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a research report and execute its pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runPersonName == "" || runCompanyName == "" {
			return eris.New("run: --person-name and --company-name are required")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Store.CreateReport(ctx, model.ReportRequest{
			UserID:      runUserID,
			PersonID:    runPersonID,
			PersonName:  runPersonName,
			CompanyID:   runCompanyID,
			CompanyName: runCompanyName,
			CompanyURL:  runCompanyURL,
		})
		if err != nil {
			return eris.Wrap(err, "run: create report")
		}
		zap.L().Info("report created", zap.String("report_id", report.ID))

		workflowID, err := pipeline.Advance(ctx, env.Temporal, cfg.Temporal.TaskQueue, workflowInput(report.ID))
		if err != nil {
			return err
		}

		if !runWait {
			fmt.Printf("report %s started (workflow %s)\n", report.ID, workflowID)
			return nil
		}

		var result pipeline.WorkflowResult
		if err := env.Temporal.GetWorkflow(ctx, workflowID, "").Get(ctx, &result); err != nil {
			return eris.Wrap(err, "run: await workflow")
		}

		final, err := env.Store.GetReport(ctx, report.ID)
		if err != nil {
			return eris.Wrap(err, "run: load final report")
		}
		out, err := json.MarshalIndent(final, "", "  ")
		if err != nil {
			return eris.Wrap(err, "run: marshal report")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runPersonID, "person-id", "", "lead person id")
	runCmd.Flags().StringVar(&runPersonName, "person-name", "", "lead person name")
	runCmd.Flags().StringVar(&runCompanyID, "company-id", "", "company id")
	runCmd.Flags().StringVar(&runCompanyName, "company-name", "", "company name")
	runCmd.Flags().StringVar(&runCompanyURL, "company-url", "", "company website")
	runCmd.Flags().StringVar(&runUserID, "user-id", "", "requesting user id")
	runCmd.Flags().BoolVar(&runWait, "wait", false, "block until the pipeline finishes and print the report")
	rootCmd.AddCommand(runCmd)
}
