// Package hosting classifies webhook-carried repo URLs against the
// configured integration/landing repos (spec.md §4.1's push handler:
// "if the pushed repo URL is an integration repo, invoke upstream
// integration-commit; if it is the landing repo, invoke
// landing-commit") and adapts the code-hosting APIs the router needs
// to read PR metadata and post status back, grounded on the teacher's
// internal/hosting.Provider.
package hosting

import "context"

// ProviderType identifies which hosting provider a repo URL resolved to.
type ProviderType string

const (
	ProviderGitHub  ProviderType = "github"
	ProviderGitLab  ProviderType = "gitlab"
	ProviderUnknown ProviderType = "unknown"
)

// Provider is narrowed from the teacher's full PR-management surface
// down to what the event router needs: reading PR/check state and
// posting a comment back. Try-push creation and status never call a
// hosting Provider directly — they go through internal/ci and
// internal/defecttracker.
type Provider interface {
	GetPR(ctx context.Context, number int) (*PR, error)
	CreatePRComment(ctx context.Context, number int, body string) error
	GetCheckRuns(ctx context.Context, ref string) ([]CheckRun, error)
	Name() ProviderType
	OwnerRepo() (owner, repo string)
}

// PR is the subset of pull-request/merge-request fields the router
// and supplemented landing logic need.
type PR struct {
	Number     int
	Title      string
	State      string
	HeadBranch string
	BaseBranch string
	HeadSHA    string
	HTMLURL    string
}

// CheckRun is a unified view over GitHub check runs / GitLab pipeline jobs.
type CheckRun struct {
	Name       string
	Status     string
	Conclusion string
}
