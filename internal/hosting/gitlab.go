package hosting

import (
	"context"
	"fmt"

	gogitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLabProvider implements Provider using gitlab.com/gitlab-org/api/client-go,
// adapted from the teacher's internal/hosting/gitlab.GitLabProvider.
type GitLabProvider struct {
	client    *gogitlab.Client
	projectID string
	owner     string
	repo      string
}

// NewGitLabProvider creates a GitLabProvider authenticated with token,
// scoped to owner/repo. baseURL is empty for gitlab.com.
func NewGitLabProvider(token, baseURL, owner, repo string) (*GitLabProvider, error) {
	var client *gogitlab.Client
	var err error
	if baseURL != "" {
		client, err = gogitlab.NewClient(token, gogitlab.WithBaseURL(baseURL))
	} else {
		client, err = gogitlab.NewClient(token)
	}
	if err != nil {
		return nil, fmt.Errorf("create gitlab client: %w", err)
	}

	return &GitLabProvider{
		client:    client,
		projectID: owner + "/" + repo,
		owner:     owner,
		repo:      repo,
	}, nil
}

func (g *GitLabProvider) Name() ProviderType { return ProviderGitLab }

func (g *GitLabProvider) OwnerRepo() (string, string) { return g.owner, g.repo }

func (g *GitLabProvider) GetPR(ctx context.Context, number int) (*PR, error) {
	mr, _, err := g.client.MergeRequests.GetMergeRequest(g.projectID, int64(number), nil, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get gitlab MR %d: %w", number, err)
	}
	return &PR{
		Number:     int(mr.IID),
		Title:      mr.Title,
		State:      mr.State,
		HeadBranch: mr.SourceBranch,
		BaseBranch: mr.TargetBranch,
		HeadSHA:    mr.SHA,
		HTMLURL:    mr.WebURL,
	}, nil
}

func (g *GitLabProvider) CreatePRComment(ctx context.Context, number int, body string) error {
	_, _, err := g.client.Notes.CreateMergeRequestNote(g.projectID, number,
		&gogitlab.CreateMergeRequestNoteOptions{Body: gogitlab.Ptr(body)}, gogitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("comment on gitlab MR %d: %w", number, err)
	}
	return nil
}

func (g *GitLabProvider) GetCheckRuns(ctx context.Context, ref string) ([]CheckRun, error) {
	opts := &gogitlab.ListProjectPipelinesOptions{SHA: gogitlab.Ptr(ref)}
	pipelines, _, err := g.client.Pipelines.ListProjectPipelines(g.projectID, opts, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list gitlab pipelines for %s: %w", ref, err)
	}

	runs := make([]CheckRun, 0, len(pipelines))
	for _, p := range pipelines {
		runs = append(runs, CheckRun{Name: fmt.Sprintf("pipeline-%d", p.ID), Status: p.Status})
	}
	return runs, nil
}
