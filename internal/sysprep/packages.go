// Package sysprep provisions the baseline tooling a bootstrap run depends
// on before the script pipeline starts.
package sysprep

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog/log"
)

// CommandRunner abstracts host command execution so provisioning is
// testable without touching the package manager.
type CommandRunner interface {
	Run(name string, args ...string) (stdout, stderr []byte, exitCode int, err error)
}

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

func (ExecRunner) Run(name string, args ...string) ([]byte, []byte, int, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), err
	}
	return stdout.Bytes(), stderr.Bytes(), 127, err
}

// ErrRequiredTool is returned when the required tool is still missing after
// the single retry. It is the only condition that terminates a run early.
var ErrRequiredTool = errors.New("required tool unavailable after retry")

// Installer installs the baseline package set and verifies the required
// tool.
type Installer struct {
	Runner   CommandRunner
	Packages []string
	Required string
}

// Install updates the package index, installs the baseline packages and
// checks that the required tool resolves, retrying its installation exactly
// once. Package-manager failures are tolerated; only a missing required
// tool after the retry is fatal.
func (in Installer) Install() error {
	log.Info().Msg("updating system")
	in.apt("-qq", "update", "-y")

	if len(in.Packages) > 0 {
		log.Info().Strs("packages", in.Packages).Msg("installing required packages")
		in.apt(append([]string{"-qq", "install", "-y"}, in.Packages...)...)
		log.Info().Msg("package installation completed")
	}

	if in.Required == "" {
		return nil
	}
	if in.toolPresent() {
		log.Info().Str("tool", in.Required).Msg("required tool is installed and available")
		return nil
	}

	log.Warn().Str("tool", in.Required).Msg("required tool not installed, trying again")
	in.apt("install", "-y", in.Required)
	if in.toolPresent() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRequiredTool, in.Required)
}

func (in Installer) apt(args ...string) {
	_, stderr, code, err := in.Runner.Run("apt-get", args...)
	if err != nil {
		log.Warn().Err(err).Int("exit_code", code).Str("stderr", string(stderr)).Msg("apt-get failed")
	}
}

func (in Installer) toolPresent() bool {
	_, _, code, _ := in.Runner.Run("which", in.Required)
	return code == 0
}
