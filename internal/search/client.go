// Package search discovers content sources for a person + company pair
// using the Jina search API.
package search

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-research/internal/model"
	"github.com/sells-group/outreach-research/internal/resilience"
	"github.com/sells-group/outreach-research/pkg/jina"
)

// Request describes the subject to discover sources for.
type Request struct {
	PersonName  string
	CompanyName string
	CompanyURL  string
	MaxResults  int
}

// Client discovers content sources.
type Client interface {
	FetchSources(ctx context.Context, req Request) ([]model.SearchResult, error)
}

type jinaSearcher struct {
	jc jina.Client
}

// New creates a search client backed by Jina.
func New(jc jina.Client) Client {
	return &jinaSearcher{jc: jc}
}

// query pairs a search string with an optional site filter and the kind
// its results should carry.
type query struct {
	text string
	site string
	kind model.SourceKind
}

func buildQueries(req Request) []query {
	qs := []query{
		{text: fmt.Sprintf("%q %q", req.PersonName, req.CompanyName), kind: model.SourceKindWebPage},
		{text: fmt.Sprintf("%q news", req.CompanyName), kind: model.SourceKindWebPage},
		{text: req.PersonName, site: "linkedin.com", kind: model.SourceKindSocialActivity},
	}
	if host := hostOf(req.CompanyURL); host != "" {
		qs = append(qs, query{text: req.CompanyName, site: host, kind: model.SourceKindWebPage})
	}
	return qs
}

func (s *jinaSearcher) FetchSources(ctx context.Context, req Request) ([]model.SearchResult, error) {
	if req.PersonName == "" || req.CompanyName == "" {
		return nil, resilience.NonRetryable(eris.New("search: person and company names are required"))
	}

	queries := buildQueries(req)

	type queryResult struct {
		query   query
		results []jina.SearchResult
		err     error
	}

	// Queries run concurrently but a single failure must not cancel its
	// siblings, so each goroutine records its own error and returns nil.
	out := make([]queryResult, len(queries))
	g := new(errgroup.Group)
	for i, q := range queries {
		g.Go(func() error {
			var opts []jina.SearchOption
			if q.site != "" {
				opts = append(opts, jina.WithSiteFilter(q.site))
			}
			resp, err := s.jc.Search(ctx, q.text, opts...)
			if err != nil {
				out[i] = queryResult{query: q, err: err}
				return nil
			}
			out[i] = queryResult{query: q, results: resp.Data}
			return nil
		})
	}
	_ = g.Wait()

	var (
		sources []model.SearchResult
		seen    = make(map[string]bool)
		failed  int
	)
	for _, qr := range out {
		if qr.err != nil {
			failed++
			zap.L().Warn("search query failed",
				zap.String("query", qr.query.text),
				zap.Error(qr.err))
			continue
		}
		for _, r := range qr.results {
			norm := normalizeURL(r.URL)
			if norm == "" || seen[norm] {
				continue
			}
			seen[norm] = true

			sr := model.SearchResult{
				SourceID: uuid.NewString(),
				URL:      r.URL,
				Query:    qr.query.text,
				Kind:     qr.query.kind,
			}
			if sr.Kind == model.SourceKindSocialActivity || isSocialURL(r.URL) {
				sr.Kind = model.SourceKindSocialActivity
				sr.ActivityID = activityIDFromURL(r.URL)
				// Social items without a stable activity id cannot be
				// deduplicated across passes, so drop them.
				if sr.ActivityID == "" {
					continue
				}
			}
			sources = append(sources, sr)
		}
	}

	if failed == len(queries) {
		return nil, resilience.Retryable(eris.New("search: all queries failed"))
	}

	if req.MaxResults > 0 && len(sources) > req.MaxResults {
		sources = sources[:req.MaxResults]
	}
	return sources, nil
}

// normalizeURL canonicalizes a URL for dedup: lowercased host, no
// scheme, no trailing slash, no query string.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	path := strings.TrimSuffix(u.Path, "/")
	return host + path
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}

var (
	linkedinActivityRe = regexp.MustCompile(`activity[-:](\d+)`)
	statusRe           = regexp.MustCompile(`/status(?:es)?/(\d+)`)
)

func isSocialURL(raw string) bool {
	host := strings.ToLower(hostOf(raw))
	return strings.HasSuffix(host, "linkedin.com") ||
		strings.HasSuffix(host, "twitter.com") ||
		strings.HasSuffix(host, "x.com")
}

// activityIDFromURL extracts the platform activity id from a social URL.
// Returns "" when no id is present (profile pages, company pages).
func activityIDFromURL(raw string) string {
	if m := linkedinActivityRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if m := statusRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}
