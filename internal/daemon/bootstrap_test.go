package daemon

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/infra"
)

func TestDaemonArgs(t *testing.T) {
	assert.Equal(t, []string{"daemon"}, DaemonArgs(""))
	assert.Equal(t, []string{"daemon", "--config", "/etc/focuscage.yaml"}, DaemonArgs("/etc/focuscage.yaml"))
}

func TestMonitorArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"monitor", "--event", "start", "--activity", "work"},
		MonitorArgs("", infra.IntervalStart, "work"))
	assert.Equal(t,
		[]string{"monitor", "--event", "end", "--activity", "work", "--config", "c.yaml"},
		MonitorArgs("c.yaml", infra.IntervalEnd, "work"))
}

func TestMonitorSpawner_Spawn(t *testing.T) {
	truePath, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true(1) not available")
	}

	s := NewMonitorSpawner(truePath, "", zap.NewNop())
	require.NoError(t, s.Spawn(infra.IntervalStart, "work"))
}

func TestMonitorSpawner_MissingExecutable(t *testing.T) {
	s := NewMonitorSpawner("/nonexistent/focuscage", "", zap.NewNop())

	err := s.Spawn(infra.IntervalEnd, "work")
	assert.Error(t, err)

	// Handle only logs
	s.Handle(infra.IntervalEnd, "work")
}
