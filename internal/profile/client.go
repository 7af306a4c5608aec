// Package profile resolves a person + company request into confirmed
// identifiers and a short narrative via the Perplexity API.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-research/internal/cost"
	"github.com/sells-group/outreach-research/internal/model"
	"github.com/sells-group/outreach-research/internal/resilience"
	"github.com/sells-group/outreach-research/pkg/perplexity"
)

// Request identifies the person and company to enrich.
type Request struct {
	PersonID    string
	PersonName  string
	CompanyID   string
	CompanyName string
	CompanyURL  string
}

// Result is the enriched profile. PersonID and CompanyID echo the
// request identifiers unless the provider resolved canonical ones.
type Result struct {
	PersonID   string
	PersonName string
	CompanyID  string
	Title      string
	Location   string
	Summary    string
	Usage      model.UsageTotals
}

// Client fetches enriched profiles.
type Client interface {
	FetchProfile(ctx context.Context, req Request) (*Result, error)
}

const systemPrompt = `You are a sales-research assistant. Given a person and their company, return a JSON object with keys: person_name (canonical full name), title, location, summary (2-3 sentences on their current role and recent public activity). Return only JSON, no prose.`

type perplexityProfiler struct {
	px    perplexity.Client
	model string
	calc  *cost.Calculator
}

// New creates a profile client backed by Perplexity.
func New(px perplexity.Client, modelID string, calc *cost.Calculator) Client {
	return &perplexityProfiler{px: px, model: modelID, calc: calc}
}

// profilePayload is the JSON shape the prompt asks for.
type profilePayload struct {
	PersonName string `json:"person_name"`
	Title      string `json:"title"`
	Location   string `json:"location"`
	Summary    string `json:"summary"`
}

func (p *perplexityProfiler) FetchProfile(ctx context.Context, req Request) (*Result, error) {
	if req.PersonName == "" || req.CompanyName == "" {
		return nil, resilience.NonRetryable(eris.New("profile: person and company names are required"))
	}

	userPrompt := fmt.Sprintf("Person: %s\nCompany: %s", req.PersonName, req.CompanyName)
	if req.CompanyURL != "" {
		userPrompt += fmt.Sprintf("\nCompany website: %s", req.CompanyURL)
	}

	resp, err := p.px.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: p.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		// The client already retried transient statuses, but the stage
		// wrapper may still want another pass later.
		return nil, resilience.Retryable(eris.Wrap(err, "profile: chat completion"))
	}
	if len(resp.Choices) == 0 {
		return nil, resilience.Retryable(eris.New("profile: empty completion"))
	}

	var payload profilePayload
	raw := extractJSON(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, resilience.Retryable(eris.Wrap(err, "profile: parse completion"))
	}

	result := &Result{
		PersonID:   req.PersonID,
		PersonName: req.PersonName,
		CompanyID:  req.CompanyID,
		Title:      payload.Title,
		Location:   payload.Location,
		Summary:    payload.Summary,
		Usage:      p.calc.ProfileQuery(),
	}
	if payload.PersonName != "" {
		result.PersonName = payload.PersonName
	}
	return result, nil
}

// extractJSON strips surrounding prose and markdown fences from a model
// response, returning the first top-level JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
