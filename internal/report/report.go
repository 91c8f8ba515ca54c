// Package report accumulates per-script outcomes into the run's status
// report and delivers it to the external collector.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/hostboot-dev/hostboot/internal/script"
	"github.com/hostboot-dev/hostboot/pkg/api"
)

// Stamp renders t as the report's UTC second-resolution timestamp.
func Stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// Aggregator builds a StatusReport incrementally across a run. It is
// created once per run and threaded through the pipeline explicitly; there
// is no shared or package-level state.
//
// Per alias the state machine is pending -> {success|failed|error},
// terminal. Failures are isolated: recording one never affects another
// entry or the rest of the run.
type Aggregator struct {
	rep   api.StatusReport
	order []string
}

func NewAggregator(instanceName, environment string) *Aggregator {
	return &Aggregator{rep: api.StatusReport{
		RunID:        uuid.NewString(),
		Timestamp:    Stamp(time.Now()),
		InstanceName: instanceName,
		Environment:  environment,
		Scripts:      map[string]api.ScriptRecord{},
	}}
}

// SetRepositoryStatus records the catalog fetch outcome.
func (a *Aggregator) SetRepositoryStatus(s api.RepositoryStatus) {
	a.rep.RepositoryStatus = s
}

// RecordScript stores the terminal record for alias. A repeated alias
// overwrites its earlier record: last write wins, matching the artifact
// overwrite behavior.
func (a *Aggregator) RecordScript(alias string, rec api.ScriptRecord) {
	if _, seen := a.rep.Scripts[alias]; !seen {
		a.order = append(a.order, alias)
	}
	a.rep.Scripts[alias] = rec
}

// RecordInit stores the init script outcome under its reserved slot,
// distinct from alias records.
func (a *Aggregator) RecordInit(rec api.ScriptRecord) {
	a.rep.InitScript = &rec
}

// Order returns aliases in processing order, which follows the declared
// alias list rather than catalog order.
func (a *Aggregator) Order() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Snapshot returns an immutable copy of the report for publication.
func (a *Aggregator) Snapshot() api.StatusReport {
	rep := a.rep
	rep.Scripts = make(map[string]api.ScriptRecord, len(a.rep.Scripts))
	for alias, rec := range a.rep.Scripts {
		rep.Scripts[alias] = rec
	}
	if a.rep.InitScript != nil {
		init := *a.rep.InitScript
		rep.InitScript = &init
	}
	return rep
}

// FromResult converts an execution result into its terminal record. Exit
// code zero is success; any other exit code is failed, never error.
func FromResult(res script.Result) api.ScriptRecord {
	status := api.StatusSuccess
	if res.ExitCode != 0 {
		status = api.StatusFailed
	}
	code := res.ExitCode
	return api.ScriptRecord{
		Status:    status,
		ExitCode:  &code,
		Output:    res.Output,
		StartTime: Stamp(res.Started),
		EndTime:   Stamp(res.Ended),
	}
}

// ErrorRecord builds the terminal record for a pipeline-level failure where
// the script never produced an exit code.
func ErrorRecord(message string, started, ended time.Time) api.ScriptRecord {
	return api.ScriptRecord{
		Status:    api.StatusError,
		Error:     message,
		StartTime: Stamp(started),
		EndTime:   Stamp(ended),
	}
}
