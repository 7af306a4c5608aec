package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-research/internal/model"
	"github.com/sells-group/outreach-research/internal/resilience"
	"github.com/sells-group/outreach-research/pkg/jina"
)

type mockJina struct {
	mock.Mock
}

func (m *mockJina) Read(ctx context.Context, targetURL string) (*jina.ReadResponse, error) {
	args := m.Called(ctx, targetURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.ReadResponse), args.Error(1)
}

func (m *mockJina) Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.SearchResponse), args.Error(1)
}

var testReq = Request{
	PersonName:  "Dana Whitfield",
	CompanyName: "Meridian Analytics",
	CompanyURL:  "https://www.meridiananalytics.io",
}

func TestFetchSources_MergesAndDedupes(t *testing.T) {
	t.Parallel()

	mj := &mockJina{}
	mj.On("Search", mock.Anything, `"Dana Whitfield" "Meridian Analytics"`).Return(&jina.SearchResponse{
		Data: []jina.SearchResult{
			{URL: "https://news.example.com/meridian-series-b"},
			{URL: "https://news.example.com/meridian-series-b/"}, // dup modulo slash
		},
	}, nil)
	mj.On("Search", mock.Anything, `"Meridian Analytics" news`).Return(&jina.SearchResponse{
		Data: []jina.SearchResult{
			{URL: "http://NEWS.example.com/meridian-series-b"}, // dup modulo scheme+case
			{URL: "https://techwire.example.com/meridian-launch"},
		},
	}, nil)
	mj.On("Search", mock.Anything, "Dana Whitfield").Return(&jina.SearchResponse{
		Data: []jina.SearchResult{
			{URL: "https://www.linkedin.com/posts/dwhitfield_activity-7210001234567890-Ab3d"},
			{URL: "https://www.linkedin.com/in/dwhitfield"}, // profile page, no activity id
		},
	}, nil)
	mj.On("Search", mock.Anything, "Meridian Analytics").Return(&jina.SearchResponse{
		Data: []jina.SearchResult{
			{URL: "https://meridiananalytics.io/blog/launch"},
		},
	}, nil)

	client := New(mj)
	got, err := client.FetchSources(context.Background(), testReq)

	require.NoError(t, err)
	require.Len(t, got, 4)

	urls := make(map[string]model.SearchResult, len(got))
	for _, sr := range got {
		assert.NotEmpty(t, sr.SourceID)
		urls[sr.URL] = sr
	}
	assert.Contains(t, urls, "https://news.example.com/meridian-series-b")
	assert.Contains(t, urls, "https://techwire.example.com/meridian-launch")
	assert.Contains(t, urls, "https://meridiananalytics.io/blog/launch")

	social := urls["https://www.linkedin.com/posts/dwhitfield_activity-7210001234567890-Ab3d"]
	assert.Equal(t, model.SourceKindSocialActivity, social.Kind)
	assert.Equal(t, "7210001234567890", social.ActivityID)
}

func TestFetchSources_PartialQueryFailure(t *testing.T) {
	t.Parallel()

	mj := &mockJina{}
	mj.On("Search", mock.Anything, `"Dana Whitfield" "Meridian Analytics"`).Return(&jina.SearchResponse{
		Data: []jina.SearchResult{{URL: "https://news.example.com/a"}},
	}, nil)
	mj.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("upstream 503"))

	client := New(mj)
	got, err := client.FetchSources(context.Background(), testReq)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://news.example.com/a", got[0].URL)
}

func TestFetchSources_AllQueriesFailed(t *testing.T) {
	t.Parallel()

	mj := &mockJina{}
	mj.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("upstream 503"))

	client := New(mj)
	_, err := client.FetchSources(context.Background(), testReq)

	require.Error(t, err)
	assert.Equal(t, resilience.KindRetryable, resilience.KindOf(err))
}

func TestFetchSources_MissingNames(t *testing.T) {
	t.Parallel()

	client := New(&mockJina{})
	_, err := client.FetchSources(context.Background(), Request{CompanyName: "Meridian Analytics"})

	require.Error(t, err)
	assert.Equal(t, resilience.KindNonRetryable, resilience.KindOf(err))
}

func TestFetchSources_MaxResults(t *testing.T) {
	t.Parallel()

	mj := &mockJina{}
	mj.On("Search", mock.Anything, mock.Anything).Return(&jina.SearchResponse{
		Data: []jina.SearchResult{
			{URL: "https://a.example.com/1"},
			{URL: "https://b.example.com/2"},
			{URL: "https://c.example.com/3"},
		},
	}, nil)

	req := testReq
	req.MaxResults = 2

	client := New(mj)
	got, err := client.FetchSources(context.Background(), req)

	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestActivityIDFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{"https://www.linkedin.com/posts/jdoe_activity-7210001234567890-Ab3d", "7210001234567890"},
		{"https://www.linkedin.com/feed/update/urn:li:activity:7210009876543210/", "7210009876543210"},
		{"https://x.com/jdoe/status/1801234567890123456", "1801234567890123456"},
		{"https://twitter.com/jdoe/statuses/1801234567890123456", "1801234567890123456"},
		{"https://www.linkedin.com/in/jdoe", ""},
		{"https://example.com/blog/activity", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, activityIDFromURL(tt.url), tt.url)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, normalizeURL("https://www.Example.com/a/"), normalizeURL("http://example.com/a"))
	assert.Equal(t, "", normalizeURL("not a url"))
}
