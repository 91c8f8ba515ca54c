package api

// v0 contains public types for the status report wire format.

type ScriptStatus string

const (
	StatusPending ScriptStatus = "pending"
	StatusSuccess ScriptStatus = "success"
	StatusFailed  ScriptStatus = "failed"
	StatusError   ScriptStatus = "error"
)

type RepositoryStatus string

const (
	RepositorySuccess RepositoryStatus = "success"
	RepositoryFailed  RepositoryStatus = "failed"
)

// ScriptRecord is the terminal per-alias entry in a status report. Records
// that ran carry an exit code and captured output; records that never ran
// carry an error message instead.
type ScriptRecord struct {
	Status    ScriptStatus `json:"status"`
	ExitCode  *int         `json:"exit_code,omitempty"`
	Output    string       `json:"output,omitempty"`
	Error     string       `json:"error,omitempty"`
	StartTime string       `json:"start_time"`
	EndTime   string       `json:"end_time"`
}

// StatusReport is the structured summary of one bootstrap run, published to
// the external collector. Host identity fields are filled in at publish
// time only.
type StatusReport struct {
	RunID            string                  `json:"run_id"`
	Timestamp        string                  `json:"timestamp"`
	InstanceName     string                  `json:"instance_name"`
	Environment      string                  `json:"environment,omitempty"`
	Scripts          map[string]ScriptRecord `json:"scripts"`
	RepositoryStatus RepositoryStatus        `json:"repository_status,omitempty"`
	InitScript       *ScriptRecord           `json:"init_script,omitempty"`
	InstanceID       string                  `json:"instance_id,omitempty"`
	PrivateIP        string                  `json:"private_ip,omitempty"`
	PublicIP         string                  `json:"public_ip,omitempty"`
}
