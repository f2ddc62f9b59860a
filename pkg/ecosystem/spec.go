package ecosystem

import (
	"strings"

	"github.com/cywhale/woa23/pkg/bytesize"
	"github.com/cywhale/woa23/pkg/errors"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ProcessSpec describes how an external supervisor should run one named application.
// It is declarative input: nothing in this module starts, restarts or stops the process.
type ProcessSpec struct {
	Name   string            `yaml:"name" json:"name"`
	Script string            `yaml:"script" json:"script"`
	Args   Args              `yaml:"args,omitempty" json:"args,omitempty"`
	Cwd    string            `yaml:"cwd,omitempty" json:"cwd,omitempty"`
	Env    map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	MergeLogs     bool   `yaml:"merge_logs" json:"merge_logs"`
	LogFile       string `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	OutFile       string `yaml:"out_file,omitempty" json:"out_file,omitempty"`
	ErrorFile     string `yaml:"error_file,omitempty" json:"error_file,omitempty"`
	LogDateFormat string `yaml:"log_date_format,omitempty" json:"log_date_format,omitempty"`

	AppendEnvToName bool  `yaml:"append_env_to_name" json:"append_env_to_name"`
	Watch           bool  `yaml:"watch" json:"watch"`
	AutoRestart     *bool `yaml:"autorestart,omitempty" json:"autorestart,omitempty"` // nil until defaults are applied

	MaxMemoryRestart bytesize.ByteSize `yaml:"max_memory_restart,omitempty" json:"max_memory_restart,omitempty"`

	// PreStop is an opaque shell command. It is stored verbatim and never parsed or run here.
	PreStop string `yaml:"pre_stop,omitempty" json:"pre_stop,omitempty"`
}

// LoggingConfig groups the log related options of a ProcessSpec
type LoggingConfig struct {
	Merge      bool
	Combined   string
	Stdout     string
	Stderr     string
	DateFormat string
}

func (s ProcessSpec) Logging() LoggingConfig {
	return LoggingConfig{
		Merge:      s.MergeLogs,
		Combined:   s.LogFile,
		Stdout:     s.OutFile,
		Stderr:     s.ErrorFile,
		DateFormat: s.LogDateFormat,
	}
}

// AutoRestartEnabled reports the restart policy, which defaults to true
func (s ProcessSpec) AutoRestartEnabled() bool {
	return s.AutoRestart == nil || *s.AutoRestart
}

// ResolvedName is the label the supervisor shows for this process in env.
// With append_env_to_name set and a non-empty env the result is "<name>-<env>".
func (s ProcessSpec) ResolvedName(env string) string {
	env = strings.TrimSpace(env)
	if !s.AppendEnvToName || env == "" {
		return s.Name
	}
	return s.Name + "-" + env
}

// Environment returns the env map as sorted KEY=VALUE pairs
func (s ProcessSpec) Environment() []string {
	keys := sortedKeys(s.Env)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+s.Env[key])
	}
	return pairs
}

// Clone returns a deep copy so callers cannot reach into a loaded record
func (s ProcessSpec) Clone() ProcessSpec {
	c := s
	if s.Args != nil {
		c.Args = append(Args(nil), s.Args...)
	}
	if s.Env != nil {
		c.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			c.Env[k] = v
		}
	}
	if s.AutoRestart != nil {
		v := *s.AutoRestart
		c.AutoRestart = &v
	}
	return c
}

func (s *ProcessSpec) applyDefaults() {
	if s.AutoRestart == nil {
		enabled := true
		s.AutoRestart = &enabled
	}
	if len(s.Args) == 0 {
		s.Args = nil
	}
	if len(s.Env) == 0 {
		s.Env = nil
	}
}

// Args is the ordered list of start arguments. In files it may be written as a
// single whitespace separated string or as a list.
type Args []string

func splitArgs(s string) Args {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return Args(fields)
}

func (a *Args) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*a = splitArgs(value.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return errors.NewValidationError("args must be a list of strings", err).WithContext("line", value.Line)
		}
		if len(list) == 0 {
			list = nil
		}
		*a = list
		return nil
	default:
		return errors.NewValidationError("args must be a string or a list of strings", nil).WithContext("line", value.Line)
	}
}

func (a *Args) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*a = splitArgs(text)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.NewValidationError("args must be a string or a list of strings", err)
	}
	if len(list) == 0 {
		list = nil
	}
	*a = list
	return nil
}
