package script

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Param is one script parameter: a canonical name plus an opaque text value.
// Values are never typed or validated here; numeric and boolean
// interpretation belongs to the invoked script.
type Param struct {
	Name  string
	Value string
}

// EnvAssignment renders the legacy environment binding. The canonical name
// is used unchanged.
func (p Param) EnvAssignment() string { return p.Name + "=" + p.Value }

// FlagName renders the lowercase, hyphen-joined form of the name.
func (p Param) FlagName() string {
	return strings.ReplaceAll(strings.ToLower(p.Name), "_", "-")
}

// FlagToken renders the flag with its value quoted, as it appears on the
// logged command line.
func (p Param) FlagToken() string {
	return fmt.Sprintf("--%s=%q", p.FlagName(), p.Value)
}

// FlagArg renders the single argv element handed to the artifact. The value
// is carried literally; the quoting in FlagToken is shell syntax, not part
// of the value.
func (p Param) FlagArg() string {
	return "--" + p.FlagName() + "=" + p.Value
}

// ParamSet is the resolved parameter list for one alias, ordered by
// canonical name so invocations are deterministic.
type ParamSet []Param

func (ps ParamSet) FlagArgs() []string {
	args := make([]string, 0, len(ps))
	for _, p := range ps {
		args = append(args, p.FlagArg())
	}
	return args
}

func (ps ParamSet) FlagTokens() []string {
	tokens := make([]string, 0, len(ps))
	for _, p := range ps {
		tokens = append(tokens, p.FlagToken())
	}
	return tokens
}

func (ps ParamSet) EnvAssignments() []string {
	env := make([]string, 0, len(ps))
	for _, p := range ps {
		env = append(env, p.EnvAssignment())
	}
	return env
}

// ParameterMap holds per-alias parameter sets parsed from the startup JSON
// map.
type ParameterMap map[string]ParamSet

// Get returns the parameter set for alias. Absent aliases yield an empty
// set.
func (pm ParameterMap) Get(alias string) ParamSet { return pm[alias] }

// ParseParameterMap parses a JSON object keyed by alias, each value a flat
// object of parameter name to scalar value. An empty input yields an empty
// map; malformed JSON returns an error the caller downgrades to an empty
// map.
func ParseParameterMap(raw string) (ParameterMap, error) {
	if strings.TrimSpace(raw) == "" {
		return ParameterMap{}, nil
	}
	var outer map[string]map[string]any
	if err := json.Unmarshal([]byte(raw), &outer); err != nil {
		return ParameterMap{}, fmt.Errorf("parse script parameters: %w", err)
	}
	pm := make(ParameterMap, len(outer))
	for alias, fields := range outer {
		set := make(ParamSet, 0, len(fields))
		for name, value := range fields {
			set = append(set, Param{Name: name, Value: scalarText(value)})
		}
		sort.Slice(set, func(i, j int) bool { return set[i].Name < set[j].Name })
		pm[alias] = set
	}
	return pm, nil
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
