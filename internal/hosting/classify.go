package hosting

import (
	"regexp"
	"strings"
)

// RepoRole classifies a webhook-carried repo URL relative to the
// configured sync topology (spec.md §4.1).
type RepoRole int

const (
	RoleUnrelated RepoRole = iota
	RoleIntegration
	RoleLanding
)

// Classify reports whether repoURL matches one of the configured
// integration repos, the landing repo, or neither. integration maps
// sync-type -> repo URL (config.Config.Integration); landing is the
// single downstream VCS-hosted repo URL.
//
// If repoURL matches an integration entry, the matching sync-type is
// also returned; it is empty for RoleLanding/RoleUnrelated.
func Classify(repoURL string, integration map[string]string, landing string) (RepoRole, string) {
	normalized := normalizeRepoURL(repoURL)

	for syncType, candidate := range integration {
		if normalizeRepoURL(candidate) == normalized {
			return RoleIntegration, syncType
		}
	}

	if normalizeRepoURL(landing) == normalized {
		return RoleLanding, ""
	}

	return RoleUnrelated, ""
}

var trailingGitSuffix = regexp.MustCompile(`\.git$`)

// normalizeRepoURL makes scheme/case/trailing-slash/.git differences
// between a webhook payload's repo URL and a configured URL not
// matter for comparison purposes.
func normalizeRepoURL(url string) string {
	u := strings.ToLower(strings.TrimSpace(url))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "git@")
	u = strings.Replace(u, ":", "/", 1)
	u = trailingGitSuffix.ReplaceAllString(u, "")
	u = strings.TrimSuffix(u, "/")
	return u
}

// DetectProvider determines which hosting provider a repo URL belongs
// to, so the router knows which client to use for follow-up API calls.
func DetectProvider(repoURL string) ProviderType {
	u := strings.ToLower(repoURL)
	switch {
	case strings.Contains(u, "github.com"):
		return ProviderGitHub
	case strings.Contains(u, "gitlab.com"):
		return ProviderGitLab
	default:
		return ProviderUnknown
	}
}
