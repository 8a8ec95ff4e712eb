package trypush

import (
	"time"

	"gopkg.in/yaml.v3"
)

// payload is the on-ref YAML shape for a TryPush, matching the
// teacher's preference for YAML-tagged structs for anything persisted
// to disk/VCS (internal/state.State in the teacher repo).
type payload struct {
	ProcessName    string    `yaml:"process_name"`
	SyncType       string    `yaml:"sync_type"`
	PRID           string    `yaml:"pr_id"`
	Seq            int       `yaml:"seq"`
	TryRev         *string   `yaml:"try_rev,omitempty"`
	TaskGroupID    *string   `yaml:"taskgroup_id,omitempty"`
	Status         Status    `yaml:"status"`
	Stability      bool      `yaml:"stability"`
	GeckoHead      string    `yaml:"gecko_head"`
	WPTHead        string    `yaml:"wpt_head"`
	Bug            *string   `yaml:"bug,omitempty"`
	Created        time.Time `yaml:"created"`
	InfraFail      bool      `yaml:"infra_fail"`
	AcceptFailures bool      `yaml:"accept_failures"`
}

func toPayload(tp *TryPush) payload {
	return payload{
		ProcessName:    tp.ProcessName,
		SyncType:       tp.SyncType,
		PRID:           tp.PRID,
		Seq:            tp.Seq,
		TryRev:         tp.TryRev,
		TaskGroupID:    tp.TaskGroupID,
		Status:         tp.Status,
		Stability:      tp.Stability,
		GeckoHead:      tp.GeckoHead,
		WPTHead:        tp.WPTHead,
		Bug:            tp.Bug,
		Created:        tp.Created,
		InfraFail:      tp.InfraFail,
		AcceptFailures: tp.AcceptFailures,
	}
}

func fromPayload(p payload) *TryPush {
	return &TryPush{
		ProcessName:    p.ProcessName,
		SyncType:       p.SyncType,
		PRID:           p.PRID,
		Seq:            p.Seq,
		TryRev:         p.TryRev,
		TaskGroupID:    p.TaskGroupID,
		Status:         p.Status,
		Stability:      p.Stability,
		GeckoHead:      p.GeckoHead,
		WPTHead:        p.WPTHead,
		Bug:            p.Bug,
		Created:        p.Created,
		InfraFail:      p.InfraFail,
		AcceptFailures: p.AcceptFailures,
	}
}

// Marshal encodes tp as the YAML payload stored at its ref.
func Marshal(tp *TryPush) ([]byte, error) {
	return yaml.Marshal(toPayload(tp))
}

// Unmarshal decodes a YAML payload read back from a ref.
func Unmarshal(data []byte) (*TryPush, error) {
	var p payload
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return fromPayload(p), nil
}
