// Package trypush implements the Try-Push Record: the durable entity
// identified by try/<sync-type>/<pr-id>/<seq>, its status machine, and
// its derived log operations, per spec.md §3, §4.3.
package trypush

import (
	"fmt"
	"time"
)

// Status is the Try-Push lifecycle status.
type Status string

const (
	StatusOpen      Status = "open"
	StatusComplete  Status = "complete"
	StatusInfraFail Status = "infra-fail"
)

// transitions enumerates every declared status edge (spec.md §3):
// open->complete, complete->open (landing reopen), infra-fail->complete.
var transitions = map[Status]map[Status]bool{
	StatusOpen:      {StatusComplete: true},
	StatusComplete:  {StatusOpen: true},
	StatusInfraFail: {StatusComplete: true},
}

// ValidStatus reports whether s is one of the three enumerated statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusComplete, StatusInfraFail:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from->to is a declared edge.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// TryPush is the durable try-push record.
type TryPush struct {
	ProcessName    string
	SyncType       string
	PRID           string
	Seq            int
	TryRev         *string
	TaskGroupID    *string
	Status         Status
	Stability      bool
	GeckoHead      string
	WPTHead        string
	Bug            *string
	Created        time.Time
	InfraFail      bool
	AcceptFailures bool
}

// ProcessName builds the structured identifier from spec.md §3.
func ProcessName(syncType, prID string, seq int) string {
	return fmt.Sprintf("try/%s/%s/%d", syncType, prID, seq)
}
