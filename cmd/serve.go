package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-research/internal/model"
	"github.com/sells-group/outreach-research/internal/pipeline"
	"github.com/sells-group/outreach-research/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for report requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		deps := serverDeps{
			store: env.Store,
			advance: func(ctx context.Context, reportID string) (string, error) {
				return pipeline.Advance(ctx, env.Temporal, cfg.Temporal.TaskQueue, workflowInput(reportID))
			},
			allowedOrigins: cfg.Server.AllowedOrigins,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(deps),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// serverDeps carries what the HTTP handlers need, kept narrow so tests
// can inject fakes.
type serverDeps struct {
	store          store.Store
	advance        func(ctx context.Context, reportID string) (string, error)
	allowedOrigins []string
}

func newRouter(deps serverDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := deps.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/reports", deps.handleCreateReport)
	r.Get("/reports", deps.handleListReports)
	r.Get("/reports/{id}", deps.handleGetReport)
	r.Post("/reports/{id}/advance", deps.handleAdvanceReport)

	return r
}

func (d serverDeps) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req model.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.PersonName == "" || req.CompanyName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "person_name and company_name are required"})
		return
	}

	report, err := d.store.CreateReport(r.Context(), req)
	if err != nil {
		zap.L().Error("create report failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "create report failed"})
		return
	}

	workflowID, err := d.advance(r.Context(), report.ID)
	if err != nil {
		zap.L().Error("advance failed",
			zap.String("report_id", report.ID),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "pipeline start failed"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"report_id":   report.ID,
		"workflow_id": workflowID,
		"status":      string(report.Status),
	})
}

func (d serverDeps) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := d.store.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "report not found"})
			return
		}
		zap.L().Error("get report failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get report failed"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (d serverDeps) handleListReports(w http.ResponseWriter, r *http.Request) {
	filter := store.ReportFilter{
		Status:    model.ReportStatus(r.URL.Query().Get("status")),
		CompanyID: r.URL.Query().Get("company_id"),
	}
	reports, err := d.store.ListReports(r.Context(), filter)
	if err != nil {
		zap.L().Error("list reports failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list reports failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// handleAdvanceReport is the recovery path: re-drive a failed report
// from its last good status.
func (d serverDeps) handleAdvanceReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := d.store.GetReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "report not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get report failed"})
		return
	}
	if report.Status == model.StatusComplete {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "report already complete"})
		return
	}

	workflowID, err := d.advance(r.Context(), id)
	if err != nil {
		zap.L().Error("advance failed", zap.String("report_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "pipeline start failed"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"report_id":   id,
		"workflow_id": workflowID,
		"resuming_as": string(report.RoutedStatus()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
