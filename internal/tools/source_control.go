package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
)

// SourceControlExecutor reads repository activity from the GitHub REST API.
type SourceControlExecutor struct {
	Token       string
	BaseURL     string
	DefaultRepo string
	Client      *http.Client
	Now         func() time.Time
}

func NewSourceControlExecutor(token, baseURL, defaultRepo string) *SourceControlExecutor {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &SourceControlExecutor{
		Token:       token,
		BaseURL:     baseURL,
		DefaultRepo: defaultRepo,
		Client:      &http.Client{Timeout: 30 * time.Second},
		Now:         time.Now,
	}
}

// ActivityItem is one normalised entry of repository activity.
type ActivityItem struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Author string    `json:"author"`
	When   time.Time `json:"when"`
	URL    string    `json:"url"`
}

func (s *SourceControlExecutor) Execute(ctx context.Context, task TaskDescriptor) (ExecutionResult, error) {
	repo := task.StringParam("repo", s.DefaultRepo)
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return Failure(fmt.Errorf("repository %q is invalid: expected owner/name", repo)), nil
	}
	resource := task.StringParam("resource", "commits")
	limit := task.IntParam("max_results", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	since, err := parseSince(task.StringParam("since", ""), now())
	if err != nil {
		return Failure(err), nil
	}

	client, err := s.client()
	if err != nil {
		return Failure(err), nil
	}

	var items []ActivityItem
	switch resource {
	case "commits":
		items, err = commits(ctx, client, owner, name, since, task.StringParam("author", ""), limit)
	case "pulls", "pull_requests", "prs":
		resource = "pulls"
		items, err = issues(ctx, client, owner, name, since, limit, true)
	case "issues":
		items, err = issues(ctx, client, owner, name, since, limit, false)
	default:
		return Failure(fmt.Errorf("unsupported source control resource %q", resource)), nil
	}
	if err != nil {
		return Failure(githubError(err)), nil
	}

	var b strings.Builder
	if since.IsZero() {
		fmt.Fprintf(&b, "%s: %d %s\n", repo, len(items), resource)
	} else {
		fmt.Fprintf(&b, "%s: %d %s since %s\n", repo, len(items), resource, since.Format("Jan 2 15:04"))
	}
	for _, it := range items {
		fmt.Fprintf(&b, "- %s %s (%s, %s)\n", it.ID, it.Title, it.Author, it.When.Format("Jan 2 15:04"))
	}

	return ExecutionResult{
		Success: true,
		Content: b.String(),
		StructuredData: map[string]any{
			"repo":     repo,
			"resource": resource,
			"count":    len(items),
			"items":    items,
		},
	}, nil
}

func (s *SourceControlExecutor) client() (*github.Client, error) {
	c := github.NewClient(s.Client)
	if s.Token != "" {
		c = c.WithAuthToken(s.Token)
	}
	base, err := url.Parse(strings.TrimRight(s.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid github api url %q: %w", s.BaseURL, err)
	}
	c.BaseURL = base
	return c, nil
}

func commits(ctx context.Context, c *github.Client, owner, repo string, since time.Time, author string, limit int) ([]ActivityItem, error) {
	opts := &github.CommitsListOptions{
		Author:      author,
		ListOptions: github.ListOptions{PerPage: limit},
	}
	if !since.IsZero() {
		opts.Since = since.UTC()
	}
	list, _, err := c.Repositories.ListCommits(ctx, owner, repo, opts)
	if err != nil {
		return nil, err
	}

	items := make([]ActivityItem, 0, len(list))
	for _, rc := range list {
		title, _, _ := strings.Cut(rc.GetCommit().GetMessage(), "\n")
		sha := rc.GetSHA()
		if len(sha) > 7 {
			sha = sha[:7]
		}
		ca := rc.GetCommit().GetAuthor()
		items = append(items, ActivityItem{
			ID:     sha,
			Title:  title,
			Author: ca.GetName(),
			When:   ca.GetDate().Time,
			URL:    rc.GetHTMLURL(),
		})
	}
	return items, nil
}

// issues lists issues or pull requests; the issues endpoint returns both.
func issues(ctx context.Context, c *github.Client, owner, repo string, since time.Time, limit int, pulls bool) ([]ActivityItem, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: limit},
	}
	if !since.IsZero() {
		opts.Since = since.UTC()
	}
	list, _, err := c.Issues.ListByRepo(ctx, owner, repo, opts)
	if err != nil {
		return nil, err
	}

	var items []ActivityItem
	for _, is := range list {
		if is.IsPullRequest() != pulls {
			continue
		}
		items = append(items, ActivityItem{
			ID:     fmt.Sprintf("#%d", is.GetNumber()),
			Title:  fmt.Sprintf("%s [%s]", is.GetTitle(), is.GetState()),
			Author: is.GetUser().GetLogin(),
			When:   is.GetUpdatedAt().Time,
			URL:    is.GetHTMLURL(),
		})
	}
	return items, nil
}

// githubError turns client errors into messages the retry policy classifies.
func githubError(err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return errors.New("github rate limit exceeded, try again later")
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return errors.New("github rate limit exceeded, try again later")
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		msg := fmt.Sprintf("github API returned %d %s", code, strings.ToLower(http.StatusText(code)))
		if respErr.Message != "" {
			msg += ": " + respErr.Message
		}
		return errors.New(msg)
	}
	return fmt.Errorf("github request failed: %w", err)
}

// parseSince accepts "today", "yesterday", "week", "month", a Go duration
// ("48h"), a date (2006-01-02) or RFC3339. Empty means no lower bound.
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch s {
	case "":
		return time.Time{}, nil
	case "today":
		return midnight, nil
	case "yesterday", "last day":
		return midnight.AddDate(0, 0, -1), nil
	case "week", "last week", "this week", "7d":
		return midnight.AddDate(0, 0, -7), nil
	case "month", "last month", "30d":
		return midnight.AddDate(0, -1, 0), nil
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, strings.ToUpper(s)); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid since value %q", s)
}
