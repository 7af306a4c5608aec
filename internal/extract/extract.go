// Package extract turns a raw content source into structured fields by
// fetching it through the reader API and classifying it with Claude.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-research/internal/cost"
	"github.com/sells-group/outreach-research/internal/model"
	"github.com/sells-group/outreach-research/internal/resilience"
	"github.com/sells-group/outreach-research/pkg/anthropic"
	"github.com/sells-group/outreach-research/pkg/jina"
)

// Subject is the person + company pair a source is classified against.
type Subject struct {
	PersonName  string
	CompanyName string
}

// Fields is the structured output of one extraction.
type Fields struct {
	Category           string
	Summary            string
	PublishedAt        *time.Time
	FocusOnCompany     bool
	RequestingContact  bool
	MentionedPeople    []string
	AssociatedProducts []string
}

// Result bundles extracted fields with the usage they cost.
type Result struct {
	Fields Fields
	Usage  model.UsageTotals
}

// Extractor produces structured fields for a content source.
type Extractor interface {
	Extract(ctx context.Context, src model.SearchResult, subj Subject) (*Result, error)
	// WarmCache primes the shared classification prompt before a
	// parallel fan-out so workers hit a warm cache entry.
	WarmCache(ctx context.Context, subj Subject) (model.UsageTotals, error)
}

// Option configures the extractor.
type Option func(*claudeExtractor)

// WithNow overrides the clock used for relative date parsing (for testing).
func WithNow(now func() time.Time) Option {
	return func(e *claudeExtractor) {
		e.now = now
	}
}

type claudeExtractor struct {
	reader    jina.Client
	llm       anthropic.Client
	calc      *cost.Calculator
	model     string
	maxTokens int64
	maxBody   int
	now       func() time.Time
}

// New creates an Extractor backed by the reader API and Claude.
func New(reader jina.Client, llm anthropic.Client, calc *cost.Calculator, modelID string, maxTokens int64, maxBody int, opts ...Option) Extractor {
	e := &claudeExtractor{
		reader:    reader,
		llm:       llm,
		calc:      calc,
		model:     modelID,
		maxTokens: maxTokens,
		maxBody:   maxBody,
		now:       time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func systemPrompt() string {
	return fmt.Sprintf(`You classify web content for sales research. Given a page and a target person and company, return a JSON object with keys:
- category: one of %s, or "none" if the content fits no category
- summary: 1-2 sentences
- published_at: publication date as written on the page, or "" if absent
- focus_on_company: true only if the content is primarily about the target company
- requesting_contact: true if the page gates its content behind a contact/demo form
- mentioned_people: full names of people mentioned (social posts only, else [])
- associated_products: product names mentioned (social posts only, else [])
Return only JSON, no prose.`, strings.Join(model.Categories(), ", "))
}

// wireFields is the JSON shape the prompt asks for.
type wireFields struct {
	Category           string   `json:"category"`
	Summary            string   `json:"summary"`
	PublishedAt        string   `json:"published_at"`
	FocusOnCompany     bool     `json:"focus_on_company"`
	RequestingContact  bool     `json:"requesting_contact"`
	MentionedPeople    []string `json:"mentioned_people"`
	AssociatedProducts []string `json:"associated_products"`
}

func (e *claudeExtractor) WarmCache(ctx context.Context, subj Subject) (model.UsageTotals, error) {
	resp, err := anthropic.PrimerRequest(ctx, e.llm, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: 16,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt()),
		Messages: []anthropic.Message{
			{Role: "user", Content: "Reply with the word ready."},
		},
	})
	if err != nil {
		return model.UsageTotals{}, resilience.Retryable(err)
	}
	return e.calc.Claude(e.model, int(resp.Usage.InputTokens+resp.Usage.CacheCreationInputTokens), int(resp.Usage.OutputTokens)), nil
}

func (e *claudeExtractor) Extract(ctx context.Context, src model.SearchResult, subj Subject) (*Result, error) {
	read, err := e.reader.Read(ctx, src.URL)
	if err != nil {
		return nil, resilience.Retryable(eris.Wrap(err, "extract: fetch content"))
	}

	content := read.Data.Content
	if strings.TrimSpace(content) == "" {
		return nil, resilience.NonRetryable(eris.Errorf("extract: empty body for %s", src.URL))
	}
	if e.maxBody > 0 && len(content) > e.maxBody {
		return nil, resilience.NonRetryable(eris.Errorf("extract: body of %s exceeds %d bytes", src.URL, e.maxBody))
	}

	usage := e.calc.Reader(read.Data.Usage.Tokens)

	userPrompt := fmt.Sprintf("Target person: %s\nTarget company: %s\nPage URL: %s\nPage title: %s\n\n%s",
		subj.PersonName, subj.CompanyName, src.URL, read.Data.Title, content)

	resp, err := e.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt()),
		Messages: []anthropic.Message{
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return nil, resilience.Retryable(eris.Wrap(err, "extract: classify content"))
	}
	usage.Add(e.calc.Claude(e.model, int(resp.Usage.InputTokens+resp.Usage.CacheCreationInputTokens), int(resp.Usage.OutputTokens)))

	var wire wireFields
	raw := extractJSON(resp.Text())
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, resilience.Retryable(eris.Wrap(err, "extract: parse classification"))
	}

	fields := Fields{
		Category:           wire.Category,
		Summary:            wire.Summary,
		FocusOnCompany:     wire.FocusOnCompany,
		RequestingContact:  wire.RequestingContact,
		MentionedPeople:    wire.MentionedPeople,
		AssociatedProducts: wire.AssociatedProducts,
	}
	if fields.Category == "" || !model.ValidCategory(fields.Category) {
		fields.Category = model.CategoryNone
	}

	if fields.Category != model.CategoryNone {
		published, ok := parseDate(wire.PublishedAt, e.now())
		if !ok {
			// Categorized content without a usable publish date can never
			// pass the freshness filter, so there is nothing to store.
			return nil, resilience.NonRetryable(eris.Errorf("extract: missing publish date for %s", src.URL))
		}
		fields.PublishedAt = &published
	}

	return &Result{Fields: fields, Usage: usage}, nil
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
