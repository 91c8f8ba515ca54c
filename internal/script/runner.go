package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// outputLineLimit bounds how much captured output reaches the status
// report, regardless of how verbose a script is.
const outputLineLimit = 20

// Result captures one artifact execution. Immutable once produced.
type Result struct {
	ExitCode int
	Output   string
	Started  time.Time
	Ended    time.Time
}

// Runner executes materialized artifacts sequentially and captures bounded
// output.
//
// The overlay carries every parameter binding made so far in the run and is
// deliberately never reset between scripts: a later script observes an
// earlier script's parameter bindings as ambient environment. Legacy
// bootstrap scripts rely on this.
type Runner struct {
	StagingDir string
	overlay    map[string]string
}

func NewRunner(stagingDir string) *Runner {
	return &Runner{StagingDir: stagingDir, overlay: map[string]string{}}
}

// Seed pre-populates the environment overlay, e.g. from an env defaults
// file. Later parameter bindings win on name collisions.
func (r *Runner) Seed(env map[string]string) {
	for k, v := range env {
		r.overlay[k] = v
	}
}

// Bind merges the parameter set into the run's environment overlay under
// the canonical parameter names.
func (r *Runner) Bind(params ParamSet) {
	for _, p := range params {
		log.Info().Str("name", p.Name).Str("value", p.Value).Msg("using parameter")
		r.overlay[p.Name] = p.Value
	}
}

// Run binds params, invokes the artifact with the rendered flag arguments
// under the accumulated overlay, writes the full capture to
// <staging>/<alias>_output.txt and returns the truncated result. A non-zero
// exit is not an error; only failures to invoke or capture are.
func (r *Runner) Run(ctx context.Context, alias, artifact string, params ParamSet) (Result, error) {
	r.Bind(params)

	log.Info().Str("alias", alias).Strs("args", params.FlagTokens()).Msg("executing script")
	started := time.Now().UTC()

	cmd := exec.CommandContext(ctx, artifact, params.FlagArgs()...)
	cmd.Env = append(os.Environ(), r.environ()...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	ended := time.Now().UTC()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Result{}, fmt.Errorf("invoke artifact: %w", runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	outPath := filepath.Join(r.StagingDir, alias+"_output.txt")
	if err := writeCapture(outPath, stdout.Bytes(), stderr.Bytes()); err != nil {
		return Result{}, err
	}
	head, err := headLines(outPath, outputLineLimit)
	if err != nil {
		return Result{}, fmt.Errorf("read output capture: %w", err)
	}

	log.Info().Str("alias", alias).Int("exit_code", exitCode).Msg("script completed")
	return Result{ExitCode: exitCode, Output: head, Started: started, Ended: ended}, nil
}

// writeCapture writes stdout followed, when non-empty, by a delimited
// stderr section.
func writeCapture(path string, stdout, stderr []byte) error {
	var buf bytes.Buffer
	buf.Write(stdout)
	if len(stderr) > 0 {
		buf.WriteString("\n\nSTDERR:\n")
		buf.Write(stderr)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write output capture: %w", err)
	}
	return nil
}

// headLines re-reads the capture file and returns at most n lines of it.
func headLines(path string, n int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	seen := 0
	for i, b := range data {
		if b != '\n' {
			continue
		}
		seen++
		if seen == n {
			return string(data[:i+1]), nil
		}
	}
	return string(data), nil
}

func (r *Runner) environ() []string {
	keys := make([]string, 0, len(r.overlay))
	for k := range r.overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+r.overlay[k])
	}
	return env
}

// Overlay returns a copy of the accumulated environment bindings; test and
// diagnostic use only.
func (r *Runner) Overlay() map[string]string {
	out := make(map[string]string, len(r.overlay))
	for k, v := range r.overlay {
		out[k] = v
	}
	return out
}
