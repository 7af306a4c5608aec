package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-research/internal/pipeline"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a pipeline worker",
	Long: `Run a worker that polls the task queue and executes research
pipeline stages. Scale throughput by running more workers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer env.Close()

		w := worker.New(env.Temporal, cfg.Temporal.TaskQueue, worker.Options{
			MaxConcurrentActivityExecutionSize: cfg.Pipeline.WorkerConcurrency,
		})
		w.RegisterWorkflow(pipeline.ResearchWorkflow)
		w.RegisterActivity(env.Activities)

		zap.L().Info("worker starting",
			zap.String("task_queue", cfg.Temporal.TaskQueue),
			zap.Int("concurrency", cfg.Pipeline.WorkerConcurrency))

		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "worker run")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
