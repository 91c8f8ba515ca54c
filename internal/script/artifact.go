package script

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// preamble is prepended to every fetched script body so the artifact can
// self-parse --name value / --name=value flags into uppercase underscore
// variables and positional arguments into PARAM1, PARAM2, ...
const preamble = `#!/bin/bash
# Parameter parsing helper
parse_parameters() {
    local params=()

    while [[ $# -gt 0 ]]; do
        key="$1"
        case $key in
            --*=*) # Handle parameters in format --param-name=value
                param_name="${key#--}"
                param_value="${param_name#*=}"
                param_name="${param_name%%=*}"
                param_name="${param_name//-/_}"
                param_name=$(echo "$param_name" | tr '[:lower:]' '[:upper:]')
                declare -g "$param_name"="$param_value"
                ;;
            --*) # Handle parameters in format --param-name value
                param_name="${key#--}"
                param_name="${param_name//-/_}"
                param_name=$(echo "$param_name" | tr '[:lower:]' '[:upper:]')
                if [[ -z "$2" || "$2" == --* ]]; then
                    declare -g "$param_name"="true"
                else
                    declare -g "$param_name"="$2"
                    shift
                fi
                ;;
            *) # Collect positional parameters
                params+=("$1")
                ;;
        esac
        shift
    done

    # Make positional parameters available as PARAM1, PARAM2, etc.
    for i in "${!params[@]}"; do
        declare -g "PARAM$((i+1))"="${params[$i]}"
    done
}

parse_parameters "$@"

# Original script follows
`

// Materializer turns remote script bodies into locally executable artifacts
// under a staging directory. Artifacts live for the rest of the process and
// are never cleaned up.
type Materializer struct {
	StagingDir string
	Client     *http.Client
}

// NormalizeURL rewrites a browsable hosting page URL to its raw-content
// form. GitHub blob pages become raw.githubusercontent.com paths; anything
// else passes through untouched.
func NormalizeURL(rawURL string) string {
	if strings.Contains(rawURL, "github.com") && !strings.Contains(rawURL, "raw.githubusercontent.com") {
		rawURL = strings.Replace(rawURL, "github.com", "raw.githubusercontent.com", 1)
		rawURL = strings.Replace(rawURL, "/blob/", "/", 1)
	}
	return rawURL
}

// Fetch downloads the script body for alias and writes the executable
// artifact at <staging>/<alias>.sh. Errors here are hard failures for the
// alias: without an artifact there is nothing to run.
func (m *Materializer) Fetch(ctx context.Context, alias, srcURL string) (string, error) {
	target := NormalizeURL(srcURL)
	if target != srcURL {
		log.Info().Str("alias", alias).Str("url", target).Msg("converted hosting page URL to raw form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build script request: %w", err)
	}
	resp, err := m.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("download script: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download script: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read script body: %w", err)
	}

	path := filepath.Join(m.StagingDir, alias+".sh")
	log.Info().Str("alias", alias).Str("file", filepath.Base(path)).Msg("downloading script")
	if err := writeExecutable(path, assemble(string(body))); err != nil {
		return "", err
	}
	return path, nil
}

// WriteInit persists an inline init-script body as an executable artifact
// at <staging>/custom_init.sh. The body is written verbatim, no preamble.
func (m *Materializer) WriteInit(body string) (string, error) {
	path := filepath.Join(m.StagingDir, "custom_init.sh")
	if err := writeExecutable(path, []byte(body)); err != nil {
		return "", err
	}
	return path, nil
}

// assemble prepends the parameter-parsing preamble. A fetched body that
// starts with an interpreter directive keeps that directive as line one and
// the preamble's own shebang is dropped, so the artifact still runs under
// its original interpreter.
func assemble(body string) []byte {
	if strings.HasPrefix(body, "#!") {
		shebang, rest, _ := strings.Cut(body, "\n")
		_, helper, _ := strings.Cut(preamble, "\n")
		return []byte(shebang + "\n" + helper + rest)
	}
	return []byte(preamble + body)
}

// writeExecutable writes content and marks it rwxr-xr-x. The chmod is
// explicit so the mode survives restrictive umasks.
func writeExecutable(path string, content []byte) error {
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return fmt.Errorf("mark artifact executable: %w", err)
	}
	return nil
}

func (m *Materializer) client() *http.Client {
	if m.Client != nil {
		return m.Client
	}
	return http.DefaultClient
}
