package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)

func newGitHubServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/repos/acme/app/commits":
			assert.Equal(t, "Bearer ghp", r.Header.Get("Authorization"))
			assert.Equal(t, "2026-03-04T00:00:00Z", r.URL.Query().Get("since"))
			fmt.Fprint(w, `[
				{"sha": "abcdef123456", "html_url": "https://github.com/acme/app/commit/abcdef1",
				 "commit": {"message": "Fix retry ceiling\n\nlonger body", "author": {"name": "dev", "date": "2026-03-04T09:00:00Z"}}}
			]`)
		case "/repos/acme/app/issues":
			fmt.Fprint(w, `[
				{"number": 7, "title": "Add calendar", "state": "open", "updated_at": "2026-03-03T10:00:00Z", "user": {"login": "a"}, "pull_request": {}},
				{"number": 8, "title": "Crash on start", "state": "closed", "updated_at": "2026-03-03T11:00:00Z", "user": {"login": "b"}}
			]`)
		case "/repos/acme/limited/commits":
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "Not Found"}`)
		}
	}))
}

func newTestSourceControl(url string) *SourceControlExecutor {
	s := NewSourceControlExecutor("ghp", url, "acme/app")
	s.Now = func() time.Time { return fixedNow }
	return s
}

func TestSourceControlExecutor_Commits(t *testing.T) {
	srv := newGitHubServer(t)
	defer srv.Close()

	res, err := newTestSourceControl(srv.URL).Execute(context.Background(), TaskDescriptor{
		Kind:       KindSourceControl,
		Parameters: map[string]any{"since": "today"},
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Content, "acme/app: 1 commits since")
	assert.Contains(t, res.Content, "abcdef1 Fix retry ceiling (dev")
	assert.NotContains(t, res.Content, "longer body")
}

func TestSourceControlExecutor_PullsAndIssues(t *testing.T) {
	srv := newGitHubServer(t)
	defer srv.Close()
	exec := newTestSourceControl(srv.URL)

	res, err := exec.Execute(context.Background(), TaskDescriptor{Kind: KindSourceControl, Parameters: map[string]any{"resource": "prs"}})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	items := res.StructuredData.(map[string]any)["items"].([]ActivityItem)
	require.Len(t, items, 1)
	assert.Equal(t, "#7", items[0].ID)

	res, err = exec.Execute(context.Background(), TaskDescriptor{Kind: KindSourceControl, Parameters: map[string]any{"resource": "issues"}})
	require.NoError(t, err)
	items = res.StructuredData.(map[string]any)["items"].([]ActivityItem)
	require.Len(t, items, 1)
	assert.Equal(t, "Crash on start [closed]", items[0].Title)
}

func TestSourceControlExecutor_Errors(t *testing.T) {
	srv := newGitHubServer(t)
	defer srv.Close()
	exec := newTestSourceControl(srv.URL)

	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"not found", map[string]any{"repo": "acme/gone"}, "github API returned 404 not found: Not Found"},
		{"rate limited", map[string]any{"repo": "acme/limited"}, "rate limit exceeded"},
		{"bad repo", map[string]any{"repo": "nope"}, "expected owner/name"},
		{"bad resource", map[string]any{"resource": "wiki"}, "unsupported"},
		{"bad since", map[string]any{"since": "someday"}, "invalid since"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := exec.Execute(context.Background(), TaskDescriptor{Kind: KindSourceControl, Parameters: tt.params})
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, tt.want)
		})
	}
}

func TestParseSince(t *testing.T) {
	midnight := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	tests := map[string]time.Time{
		"":           {},
		"today":      midnight,
		"yesterday":  midnight.AddDate(0, 0, -1),
		"last week":  midnight.AddDate(0, 0, -7),
		"month":      midnight.AddDate(0, -1, 0),
		"24h":        fixedNow.Add(-24 * time.Hour),
		"2026-02-01": time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range tests {
		got, err := parseSince(in, fixedNow)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%q: got %s", in, got)
	}
}
