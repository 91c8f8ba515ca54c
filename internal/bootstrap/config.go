package bootstrap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the orchestrator configuration. Flags override nothing here;
// the CLI carries per-run inputs in Options and this file carries host
// policy.
type Config struct {
	StagingDir      string   `yaml:"staging_dir"`
	CompletionFile  string   `yaml:"completion_file"`
	Packages        []string `yaml:"packages"`
	RequiredTool    string   `yaml:"required_tool"`
	MetadataURL     string   `yaml:"metadata_url"`
	HTTPTimeoutSecs int      `yaml:"http_timeout_seconds"`
	EnvFile         string   `yaml:"env_file"`
	SkipPackages    bool     `yaml:"skip_packages"`
}

func DefaultConfig() Config {
	return Config{
		StagingDir:      "/tmp/scripts",
		CompletionFile:  "/tmp/bootstrap_complete",
		Packages:        []string{"openssh-client", "curl", "wget", "jq"},
		RequiredTool:    "jq",
		MetadataURL:     "http://169.254.169.254/latest",
		HTTPTimeoutSecs: 30,
	}
}

// LoadConfig reads YAML configuration from a path. If path is empty, it
// resolves $XDG_CONFIG_HOME/hostboot/config.yaml or
// ~/.config/hostboot/config.yaml; a missing default file just yields
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if path == "" {
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
		path = filepath.Join(base, "hostboot", "config.yaml")
	}
	f, err := os.Open(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile reads KEY=VALUE lines used to seed the run's environment
// overlay. Lines starting with # are ignored. A missing file is not fatal.
func LoadEnvFile(path string) (map[string]string, error) {
	out := map[string]string{}
	if path == "" {
		return out, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return out, nil
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			out[k] = v
		}
	}
	return out, s.Err()
}
