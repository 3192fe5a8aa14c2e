//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"testing"

	ps "github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"
)

// fakeProcess implements ps.Process.
type fakeProcess struct {
	name string
	pid  int
}

// Pid implements ps.Process.
func (p fakeProcess) Pid() int { return p.pid }

// PPid implements ps.Process.
func (p fakeProcess) PPid() int { return 1 }

// Executable implements ps.Process.
func (p fakeProcess) Executable() string { return p.name }

// TestFindInstances skips the current process and unrelated executables.
func TestFindInstances(t *testing.T) {
	t.Parallel()

	processes := []ps.Process{
		fakeProcess{name: "alarm-silencer", pid: 10},
		fakeProcess{name: "bash", pid: 11},
		fakeProcess{name: "Alarm-Silencer", pid: 12},
		fakeProcess{name: "alarm-silencer", pid: 13},
	}

	require.Equal(t, []int{12, 13}, FindInstances(processes, "alarm-silencer", 10))
	require.Empty(t, FindInstances(processes, "alarm-checker", 10))
}

// TestEnsureSingleInstance passes when only the test binary itself runs.
func TestEnsureSingleInstance(t *testing.T) {
	t.Parallel()

	require.NoError(t, EnsureSingleInstance())
}

// TestFindInstances_TruncatedNames matches kernel-truncated process names.
func TestFindInstances_TruncatedNames(t *testing.T) {
	t.Parallel()

	processes := []ps.Process{
		fakeProcess{name: "alarm-silencer-", pid: 20},
	}

	require.Equal(t, []int{20}, FindInstances(processes, "alarm-silencer-dev", 1))
}
