package hosting

import (
	"context"
	"fmt"
	"net/http"

	gogithub "github.com/google/go-github/v82/github"
	"golang.org/x/oauth2"
)

// GitHubProvider implements Provider using go-github, adapted from
// the teacher's internal/hosting/github.GitHubProvider.
type GitHubProvider struct {
	client *gogithub.Client
	owner  string
	repo   string
}

// NewGitHubProvider creates a GitHubProvider authenticated with token,
// scoped to owner/repo.
func NewGitHubProvider(ctx context.Context, token, owner, repo string) *GitHubProvider {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)
	return &GitHubProvider{client: gogithub.NewClient(httpClient), owner: owner, repo: repo}
}

// NewGitHubProviderWithHTTPClient is used by tests to point the client
// at an httptest server instead of api.github.com.
func NewGitHubProviderWithHTTPClient(httpClient *http.Client, baseURL, owner, repo string) (*GitHubProvider, error) {
	client, err := gogithub.NewClient(httpClient).WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("configure github client base URL: %w", err)
	}
	return &GitHubProvider{client: client, owner: owner, repo: repo}, nil
}

func (p *GitHubProvider) Name() ProviderType { return ProviderGitHub }

func (p *GitHubProvider) OwnerRepo() (string, string) { return p.owner, p.repo }

func (p *GitHubProvider) GetPR(ctx context.Context, number int) (*PR, error) {
	pr, _, err := p.client.PullRequests.Get(ctx, p.owner, p.repo, number)
	if err != nil {
		return nil, fmt.Errorf("get github PR #%d: %w", number, err)
	}
	return &PR{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		State:      pr.GetState(),
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
		HeadSHA:    pr.GetHead().GetSHA(),
		HTMLURL:    pr.GetHTMLURL(),
	}, nil
}

func (p *GitHubProvider) CreatePRComment(ctx context.Context, number int, body string) error {
	_, _, err := p.client.Issues.CreateComment(ctx, p.owner, p.repo, number, &gogithub.IssueComment{Body: &body})
	if err != nil {
		return fmt.Errorf("comment on github PR #%d: %w", number, err)
	}
	return nil
}

func (p *GitHubProvider) GetCheckRuns(ctx context.Context, ref string) ([]CheckRun, error) {
	result, _, err := p.client.Checks.ListCheckRunsForRef(ctx, p.owner, p.repo, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("list github check runs for %s: %w", ref, err)
	}

	runs := make([]CheckRun, 0, len(result.CheckRuns))
	for _, cr := range result.CheckRuns {
		runs = append(runs, CheckRun{
			Name:       cr.GetName(),
			Status:     cr.GetStatus(),
			Conclusion: cr.GetConclusion(),
		})
	}
	return runs, nil
}
