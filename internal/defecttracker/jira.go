package defecttracker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"
)

// JiraConfig configures the Jira Cloud adapter, mirroring the
// teacher's internal/jira.ClientConfig.
type JiraConfig struct {
	BaseURL  string
	Email    string
	APIToken string
}

// JiraClient implements Client by posting plain-text comments (wrapped
// in a single-paragraph Atlassian Document Format node) to a Jira
// Cloud issue.
type JiraClient struct {
	jira *v3.Client
}

// NewJiraClient creates a Jira Cloud comment-posting client.
func NewJiraClient(cfg JiraConfig) (*JiraClient, error) {
	if cfg.BaseURL == "" || cfg.Email == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("jira base URL, email, and API token are required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	httpClient := &http.Client{Timeout: 30 * time.Second}

	client, err := v3.New(httpClient, baseURL)
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}
	client.Auth.SetBasicAuth(cfg.Email, cfg.APIToken)
	client.Auth.SetUserAgent("wpt-sync/1.0")

	return &JiraClient{jira: client}, nil
}

// Comment posts body as a plain-text comment on bug, per spec.md §4.3
// step 10 and §4.3's infra-fail transition side effect.
func (c *JiraClient) Comment(ctx context.Context, bug string, body string) error {
	doc := &models.CommentNodeScheme{
		Type: "doc",
		Content: []*models.CommentNodeScheme{
			{
				Type: "paragraph",
				Content: []*models.CommentNodeScheme{
					{Type: "text", Text: body},
				},
			},
		},
	}
	payload := &models.CommentPayloadScheme{Body: doc}

	_, resp, err := c.jira.Issue.Comment.Add(ctx, bug, payload, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("jira comment on %s (status %d): %w", bug, resp.StatusCode, err)
		}
		return fmt.Errorf("jira comment on %s: %w", bug, err)
	}
	return nil
}
