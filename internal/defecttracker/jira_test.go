package defecttracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJiraClient_RequiresAllFields(t *testing.T) {
	_, err := NewJiraClient(JiraConfig{})
	assert.Error(t, err)

	_, err = NewJiraClient(JiraConfig{BaseURL: "https://mozilla.atlassian.net"})
	assert.Error(t, err)
}

func TestNewJiraClient_TrimsTrailingSlash(t *testing.T) {
	c, err := NewJiraClient(JiraConfig{
		BaseURL:  "https://mozilla.atlassian.net/",
		Email:    "wpt-sync@mozilla.com",
		APIToken: "token",
	})
	require.NoError(t, err)
	require.NotNil(t, c)
}
