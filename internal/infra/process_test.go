package infra

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesProcessName(t *testing.T) {
	tests := []struct {
		name    string
		process string
		pattern string
		want    bool
	}{
		{"exact", "steam", "steam", true},
		{"case-insensitive", "Steam", "STEAM", true},
		{"substring", "steamwebhelper", "steam", true},
		{"no match", "firefox", "steam", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesProcessName(tt.process, tt.pattern))
		})
	}
}

func TestProcessManager_FindByNameSkipsSelf(t *testing.T) {
	pm := NewProcessManager()

	// The test binary's name always contains ".test"
	pids, err := pm.FindByName(".test")
	require.NoError(t, err)
	assert.NotContains(t, pids, os.Getpid())
}

func TestProcessManager_EmptyPattern(t *testing.T) {
	pids, err := NewProcessManager().FindByName("  ")
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestProcessManager_IsRunning(t *testing.T) {
	pm := NewProcessManager()
	assert.True(t, pm.IsRunning(os.Getpid()))
}
