// Package bootstrap drives one host bootstrap run end to end.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hostboot-dev/hostboot/internal/catalog"
	"github.com/hostboot-dev/hostboot/internal/metadata"
	"github.com/hostboot-dev/hostboot/internal/report"
	"github.com/hostboot-dev/hostboot/internal/script"
	"github.com/hostboot-dev/hostboot/internal/sysprep"
	"github.com/hostboot-dev/hostboot/pkg/api"
)

// initScriptKey is the reserved output-file key for the one-off init
// script; it never collides with alias records in the report.
const initScriptKey = "init_script"

// Options carries the per-run inputs from the CLI surface.
type Options struct {
	InstanceName  string
	Environment   string
	RepositoryURL string
	Aliases       []string
	RawParameters string
	WebhookURL    string
	InitScript    string
}

// PackageInstaller provisions baseline tooling before the pipeline runs.
type PackageInstaller interface {
	Install() error
}

// Orchestrator runs the bootstrap sequence: packages, catalog, each alias
// in declared order, init script, completion marker, report publish.
// Everything is strictly sequential; nothing runs concurrently with
// anything else.
type Orchestrator struct {
	cfg  Config
	opts Options

	Installer PackageInstaller
	Resolver  report.Resolver

	fetcher   *catalog.Fetcher
	mat       *script.Materializer
	runner    *script.Runner
	publisher *report.Publisher
	metrics   *Metrics
}

// New wires an orchestrator with its default collaborators. Installer and
// Resolver stay exported so callers (and tests) can substitute them.
func New(cfg Config, opts Options) *Orchestrator {
	client := &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutSecs) * time.Second}
	o := &Orchestrator{
		cfg:       cfg,
		opts:      opts,
		Installer: sysprep.Installer{Runner: sysprep.ExecRunner{}, Packages: cfg.Packages, Required: cfg.RequiredTool},
		Resolver:  metadata.New(cfg.MetadataURL),
		fetcher:   &catalog.Fetcher{Client: client, StagingDir: cfg.StagingDir},
		mat:       &script.Materializer{Client: client, StagingDir: cfg.StagingDir},
		runner:    script.NewRunner(cfg.StagingDir),
		publisher: &report.Publisher{Client: client, WebhookURL: opts.WebhookURL},
		metrics:   NewMetrics(),
	}
	o.publisher.Resolver = o.Resolver
	return o
}

// Run executes the full sequence. It returns an error only for the fatal
// startup path (required tooling could not be provisioned); every later
// failure degrades into the status report and the run completes.
func (o *Orchestrator) Run(ctx context.Context) error {
	started := time.Now()
	agg := report.NewAggregator(o.opts.InstanceName, o.opts.Environment)

	if !o.cfg.SkipPackages {
		if err := o.Installer.Install(); err != nil {
			return fmt.Errorf("provision packages: %w", err)
		}
	}

	// a broken staging directory degrades into per-script records, same as
	// any other mid-run failure
	if err := os.MkdirAll(o.cfg.StagingDir, 0o755); err != nil {
		log.Error().Err(err).Str("dir", o.cfg.StagingDir).Msg("create staging directory")
	}

	if env, err := LoadEnvFile(o.cfg.EnvFile); err == nil && len(env) > 0 {
		o.runner.Seed(env)
	}

	o.runScripts(ctx, agg)
	o.runInit(ctx, agg)
	o.writeMarker()

	// publisher.Resolver may have been swapped after New
	o.publisher.Resolver = o.Resolver
	o.publisher.Publish(ctx, agg)

	o.metrics.RecordDuration(time.Since(started))
	fetches, failures, duration := o.metrics.GetStats()
	log.Info().
		Int64("fetches", fetches).
		Int64("failures", failures).
		Dur("duration", duration).
		Msg("bootstrap run completed")
	return nil
}

// runScripts performs the catalog fetch and the per-alias pipeline. An
// absent catalog skips all script execution while the rest of the run still
// completes.
func (o *Orchestrator) runScripts(ctx context.Context, agg *report.Aggregator) {
	if o.opts.RepositoryURL == "" || len(o.opts.Aliases) == 0 {
		log.Info().Msg("skipping script download and execution")
		if o.opts.RepositoryURL == "" {
			log.Info().Msg("  - scripts repository URL is empty")
		}
		if len(o.opts.Aliases) == 0 {
			log.Info().Msg("  - script alias list is empty")
		}
		return
	}

	log.Info().
		Str("repository", o.opts.RepositoryURL).
		Strs("aliases", o.opts.Aliases).
		Msg("starting script execution")

	cat, err := o.fetcher.Fetch(ctx, o.opts.RepositoryURL)
	o.metrics.RecordFetch()
	if err != nil {
		log.Error().Err(err).Msg("failed to download repository")
		agg.SetRepositoryStatus(api.RepositoryFailed)
		return
	}
	agg.SetRepositoryStatus(api.RepositorySuccess)

	params, err := script.ParseParameterMap(o.opts.RawParameters)
	if err != nil {
		log.Warn().Err(err).Msg("script parameters are not valid JSON, using empty map")
	}

	for _, alias := range o.opts.Aliases {
		o.processAlias(ctx, agg, cat, params, alias)
	}
}

// processAlias runs one alias through materialize, bind and execute. Every
// failure is converted into a terminal record here; nothing unwinds past
// the alias loop.
func (o *Orchestrator) processAlias(ctx context.Context, agg *report.Aggregator, cat catalog.Catalog, params script.ParameterMap, alias string) {
	log.Info().Str("alias", alias).Msg("processing script alias")
	started := time.Now()

	srcURL, ok := cat.Lookup(alias)
	if !ok {
		log.Warn().Str("alias", alias).Msg("no URL found for alias")
		now := time.Now()
		agg.RecordScript(alias, report.ErrorRecord("No URL found for alias", now, now))
		o.metrics.RecordFailure()
		return
	}

	artifact, err := o.mat.Fetch(ctx, alias, srcURL)
	o.metrics.RecordFetch()
	if err != nil {
		log.Error().Err(err).Str("alias", alias).Msg("failed to process script")
		agg.RecordScript(alias, report.ErrorRecord(err.Error(), started, time.Now()))
		o.metrics.RecordFailure()
		return
	}

	res, err := o.runner.Run(ctx, alias, artifact, params.Get(alias))
	if err != nil {
		log.Error().Err(err).Str("alias", alias).Msg("failed to execute script")
		agg.RecordScript(alias, report.ErrorRecord(err.Error(), started, time.Now()))
		o.metrics.RecordFailure()
		return
	}
	if res.ExitCode != 0 {
		log.Warn().Str("alias", alias).Int("exit_code", res.ExitCode).Msg("script failed")
		o.metrics.RecordFailure()
	}
	agg.RecordScript(alias, report.FromResult(res))
}

// runInit executes the optional one-off init script after all aliases,
// through the same materialize/run/record path minus the catalog lookup.
func (o *Orchestrator) runInit(ctx context.Context, agg *report.Aggregator) {
	if strings.TrimSpace(o.opts.InitScript) == "" {
		return
	}
	log.Info().Msg("running custom initialization script")
	started := time.Now()

	path, err := o.mat.WriteInit(o.opts.InitScript)
	if err != nil {
		log.Error().Err(err).Msg("failed to write init script")
		agg.RecordInit(report.ErrorRecord(err.Error(), started, time.Now()))
		o.metrics.RecordFailure()
		return
	}
	res, err := o.runner.Run(ctx, initScriptKey, path, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to execute init script")
		agg.RecordInit(report.ErrorRecord(err.Error(), started, time.Now()))
		o.metrics.RecordFailure()
		return
	}
	if res.ExitCode != 0 {
		o.metrics.RecordFailure()
	}
	agg.RecordInit(report.FromResult(res))
}

// writeMarker drops the zero-byte completion file watched by external
// tooling. It is written unconditionally, whatever happened earlier.
func (o *Orchestrator) writeMarker() {
	if err := os.WriteFile(o.cfg.CompletionFile, nil, 0o644); err != nil {
		log.Error().Err(err).Msg("write completion marker")
	}
}
