//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ps "github.com/mitchellh/go-ps"
)

// ErrAlreadyRunning is returned when another process runs the same executable.
var ErrAlreadyRunning = errors.New("another instance is already running")

// EnsureSingleInstance fails when another process with the executable name
// of this one is running. Two silencers would fight over the audio device
// and the face pin.
func EnsureSingleInstance() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("detect executable: %w", err)
	}

	processes, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	others := FindInstances(processes, filepath.Base(executable), os.Getpid())
	if len(others) > 0 {
		return fmt.Errorf("%w: pid %v", ErrAlreadyRunning, others)
	}

	return nil
}

// maxCommLength is the length Linux truncates process names to.
const maxCommLength = 15

// FindInstances returns the pids of processes named executable, skipping self.
// Names are compared case-insensitively to cover Windows.
func FindInstances(processes []ps.Process, executable string, self int) []int {
	var pids []int

	executable = truncateName(executable)

	for _, process := range processes {
		if process.Pid() == self {
			continue
		}

		if !strings.EqualFold(truncateName(process.Executable()), executable) {
			continue
		}

		pids = append(pids, process.Pid())
	}

	return pids
}

// truncateName shortens name to the length kept by the kernel.
func truncateName(name string) string {
	if len(name) > maxCommLength {
		return name[:maxCommLength]
	}

	return name
}
