package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostboot-dev/hostboot/pkg/api"
)

// scriptServer serves a catalog plus the script bodies it points at and
// counts every request.
func scriptServer(t *testing.T, scripts map[string]string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	mux := http.NewServeMux()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	catalog := map[string]string{}
	for alias, body := range scripts {
		alias, body := alias, body
		catalog[alias] = srv.URL + "/scripts/" + alias + ".sh"
		mux.HandleFunc("/scripts/"+alias+".sh", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
	}
	mux.HandleFunc("/repository.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(catalog)
	})
	return srv, &hits
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.StagingDir = filepath.Join(dir, "scripts")
	cfg.CompletionFile = filepath.Join(dir, "bootstrap_complete")
	cfg.SkipPackages = true
	return cfg
}

func captureWebhook(t *testing.T) (*httptest.Server, *api.StatusReport) {
	t.Helper()
	report := &api.StatusReport{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, report))
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv, report
}

func TestRunFullPipeline(t *testing.T) {
	srv, _ := scriptServer(t, map[string]string{
		"greet": "echo hello-$NAME\n",
		"fail":  "exit 2\n",
	})
	webhook, received := captureWebhook(t)

	cfg := testConfig(t)
	o := New(cfg, Options{
		InstanceName:  "web-1",
		Environment:   "staging",
		RepositoryURL: srv.URL + "/repository.json",
		Aliases:       []string{"greet", "missing", "fail"},
		RawParameters: `{"greet": {"NAME": "world"}}`,
		WebhookURL:    webhook.URL,
	})
	o.Resolver = nil

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, "web-1", received.InstanceName)
	assert.Equal(t, "staging", received.Environment)
	assert.Equal(t, api.RepositorySuccess, received.RepositoryStatus)

	greet := received.Scripts["greet"]
	assert.Equal(t, api.StatusSuccess, greet.Status)
	require.NotNil(t, greet.ExitCode)
	assert.Equal(t, 0, *greet.ExitCode)
	assert.Contains(t, greet.Output, "hello-world")

	missing := received.Scripts["missing"]
	assert.Equal(t, api.StatusError, missing.Status)
	assert.Equal(t, "No URL found for alias", missing.Error)
	_, statErr := os.Stat(filepath.Join(cfg.StagingDir, "missing.sh"))
	assert.True(t, os.IsNotExist(statErr))

	failed := received.Scripts["fail"]
	assert.Equal(t, api.StatusFailed, failed.Status)
	require.NotNil(t, failed.ExitCode)
	assert.Equal(t, 2, *failed.ExitCode)

	// run completes with the marker in place despite the failures
	_, err := os.Stat(cfg.CompletionFile)
	assert.NoError(t, err)
}

func TestRunEmptyInputsSkipsEverything(t *testing.T) {
	_, hits := scriptServer(t, nil)

	cfg := testConfig(t)
	o := New(cfg, Options{InstanceName: "web-1", Environment: "dev"})
	o.Resolver = nil

	require.NoError(t, o.Run(context.Background()))

	assert.Zero(t, hits.Load())
	entries, err := os.ReadDir(cfg.StagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = os.Stat(cfg.CompletionFile)
	assert.NoError(t, err)
}

func TestRunBadCatalogStillCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	t.Cleanup(srv.Close)
	webhook, received := captureWebhook(t)

	cfg := testConfig(t)
	o := New(cfg, Options{
		InstanceName:  "web-1",
		Environment:   "dev",
		RepositoryURL: srv.URL,
		Aliases:       []string{"anything"},
		WebhookURL:    webhook.URL,
	})
	o.Resolver = nil

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, api.RepositoryFailed, received.RepositoryStatus)
	assert.Empty(t, received.Scripts)
	_, err := os.Stat(cfg.CompletionFile)
	assert.NoError(t, err)
}

func TestRunParameterLeakAcrossAliases(t *testing.T) {
	srv, _ := scriptServer(t, map[string]string{
		"first":  "true\n",
		"second": "echo observed=$FOO\n",
	})
	webhook, received := captureWebhook(t)

	cfg := testConfig(t)
	o := New(cfg, Options{
		InstanceName:  "web-1",
		Environment:   "dev",
		RepositoryURL: srv.URL + "/repository.json",
		Aliases:       []string{"first", "second"},
		RawParameters: `{"first": {"FOO": "1"}}`,
		WebhookURL:    webhook.URL,
	})
	o.Resolver = nil

	require.NoError(t, o.Run(context.Background()))

	second := received.Scripts["second"]
	assert.Equal(t, api.StatusSuccess, second.Status)
	assert.Contains(t, second.Output, "observed=1")
}

func TestRunInitScript(t *testing.T) {
	webhook, received := captureWebhook(t)

	cfg := testConfig(t)
	o := New(cfg, Options{
		InstanceName: "web-1",
		Environment:  "dev",
		WebhookURL:   webhook.URL,
		InitScript:   "#!/bin/sh\necho init-ran\n",
	})
	o.Resolver = nil

	require.NoError(t, o.Run(context.Background()))

	require.NotNil(t, received.InitScript)
	assert.Equal(t, api.StatusSuccess, received.InitScript.Status)
	assert.Contains(t, received.InitScript.Output, "init-ran")

	out, err := os.ReadFile(filepath.Join(cfg.StagingDir, "init_script_output.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "init-ran")
}

type failingInstaller struct{}

func (failingInstaller) Install() error { return fmt.Errorf("required tool unavailable after retry") }

func TestRunFatalOnInstallFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.SkipPackages = false

	o := New(cfg, Options{InstanceName: "web-1", Environment: "dev"})
	o.Installer = failingInstaller{}
	o.Resolver = nil

	err := o.Run(context.Background())
	require.Error(t, err)

	// fatal startup: nothing later in the sequence happened
	_, statErr := os.Stat(cfg.CompletionFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunDuplicateAliasLastWriteWins(t *testing.T) {
	srv, _ := scriptServer(t, map[string]string{"dup": "echo ran\n"})
	webhook, received := captureWebhook(t)

	cfg := testConfig(t)
	o := New(cfg, Options{
		InstanceName:  "web-1",
		Environment:   "dev",
		RepositoryURL: srv.URL + "/repository.json",
		Aliases:       []string{"dup", "dup"},
		WebhookURL:    webhook.URL,
	})
	o.Resolver = nil

	require.NoError(t, o.Run(context.Background()))

	assert.Len(t, received.Scripts, 1)
	assert.Equal(t, api.StatusSuccess, received.Scripts["dup"].Status)
}
