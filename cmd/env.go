package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/sells-group/outreach-research/internal/cost"
	"github.com/sells-group/outreach-research/internal/extract"
	"github.com/sells-group/outreach-research/internal/pipeline"
	"github.com/sells-group/outreach-research/internal/profile"
	"github.com/sells-group/outreach-research/internal/search"
	"github.com/sells-group/outreach-research/internal/store"
	anthropicpkg "github.com/sells-group/outreach-research/pkg/anthropic"
	"github.com/sells-group/outreach-research/pkg/jina"
	"github.com/sells-group/outreach-research/pkg/perplexity"
)

// appEnv holds the initialized store, collaborator clients, and
// activities shared by the serve/worker/run commands.
type appEnv struct {
	Store      store.Store
	Activities *pipeline.Activities
	Temporal   temporalclient.Client
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Temporal != nil {
		e.Temporal.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store and all API clients and builds the pipeline
// activities. Callers should defer env.Close(). withTemporal controls
// whether a Temporal client connection is dialed; the worker builds its
// own connection.
func initEnv(ctx context.Context, withTemporal bool) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	jinaOpts := []jina.Option{
		jina.WithRateLimit(cfg.Reader.RatePerSec),
		jina.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Reader.TimeoutSecs) * time.Second}),
	}
	if cfg.Reader.BaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithBaseURL(cfg.Reader.BaseURL))
	}
	if cfg.Search.BaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Search.BaseURL))
	}
	jinaClient := jina.NewClient(cfg.Reader.Key, jinaOpts...)

	perplexityClient := perplexity.NewClient(cfg.Profile.Key,
		perplexity.WithBaseURL(cfg.Profile.BaseURL),
		perplexity.WithModel(cfg.Profile.Model))

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	calc := cost.NewCalculator(cost.DefaultRates())
	extractor := extract.New(jinaClient, anthropicClient, calc,
		cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, int(cfg.Reader.MaxBodyBytes))
	searcher := search.New(jinaClient)
	profiler := profile.New(perplexityClient, cfg.Profile.Model, calc)

	env := &appEnv{
		Store: st,
		Activities: pipeline.NewActivities(st, searcher, profiler, extractor,
			cfg.Search.MaxResults, cfg.Pipeline.FreshnessMonths),
	}

	if withTemporal {
		tc, err := temporalclient.Dial(temporalclient.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "dial temporal")
		}
		env.Temporal = tc
	}

	return env, nil
}

// workflowInput builds the workflow input for a report from the loaded
// configuration so every trigger path carries the same tuning.
func workflowInput(reportID string) pipeline.WorkflowInput {
	return pipeline.WorkflowInput{
		ReportID:    reportID,
		Concurrency: cfg.Pipeline.WorkerConcurrency,
		Policy: pipeline.StagePolicy{
			StageAttempts:    cfg.Pipeline.StageAttempts,
			StageBackoffSecs: cfg.Pipeline.StageBackoffSecs,
			StageTimeoutSecs: cfg.Pipeline.StageTimeoutSecs,
			ShardTimeoutSecs: cfg.Pipeline.ShardTimeoutSecs,
		},
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "outreach-research.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
