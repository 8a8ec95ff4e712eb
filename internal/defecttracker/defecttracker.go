// Package defecttracker declares the out-of-scope defect-tracker
// collaborator (spec.md §1) that the core posts try-push comments to,
// plus a Jira Cloud adapter grounded on the teacher's internal/jira
// client.
package defecttracker

import "context"

// Client posts comments to a defect-tracker ticket. The core only
// ever calls Comment; ticket creation/lookup/mutation lives outside
// the core.
type Client interface {
	Comment(ctx context.Context, bug string, body string) error
}
