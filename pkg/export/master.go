package export

import (
	"bytes"
	"math"
	"strings"
	"time"

	"github.com/cywhale/woa23/pkg/ecosystem"
	"github.com/cywhale/woa23/pkg/errors"

	"gopkg.in/yaml.v3"
)

// MasterConfig is the hsu-master configuration file layout
type MasterConfig struct {
	Master        MasterConfigOptions  `yaml:"master"`
	Workers       []WorkerConfig       `yaml:"workers"`
	LogCollection *LogCollectionConfig `yaml:"log_collection,omitempty"`
}

type MasterConfigOptions struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level,omitempty"`
}

type WorkerConfig struct {
	ID          string           `yaml:"id"`
	Type        string           `yaml:"type"`
	ProfileType string           `yaml:"profile_type"`
	Enabled     *bool            `yaml:"enabled,omitempty"`
	Unit        WorkerUnitConfig `yaml:"unit"`
}

type WorkerUnitConfig struct {
	Managed *ManagedUnit `yaml:"managed,omitempty"`
}

type ManagedUnit struct {
	Metadata UnitMetadata                `yaml:"metadata"`
	Control  ManagedProcessControlConfig `yaml:"control"`
}

type UnitMetadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

type ManagedProcessControlConfig struct {
	Execution     ExecutionConfig `yaml:"execution"`
	RestartPolicy string          `yaml:"restart_policy"`
	Limits        *ResourceLimits `yaml:"limits,omitempty"`
}

type ExecutionConfig struct {
	ExecutablePath   string        `yaml:"executable_path"`
	Args             []string      `yaml:"args,omitempty"`
	Environment      []string      `yaml:"environment,omitempty"`
	WorkingDirectory string        `yaml:"working_directory,omitempty"`
	WaitDelay        time.Duration `yaml:"wait_delay,omitempty"`
}

type ResourceLimits struct {
	Memory *MemoryLimits `yaml:"memory,omitempty"`
}

type MemoryLimits struct {
	MaxRSS int64  `yaml:"max_rss"`
	Policy string `yaml:"policy"`
}

type LogCollectionConfig struct {
	Enabled       bool            `yaml:"enabled"`
	DefaultWorker WorkerLogConfig `yaml:"default_worker"`
}

type WorkerLogConfig struct {
	Enabled       bool         `yaml:"enabled"`
	CaptureStdout bool         `yaml:"capture_stdout"`
	CaptureStderr bool         `yaml:"capture_stderr"`
	Outputs       OutputConfig `yaml:"outputs"`
}

type OutputConfig struct {
	Separate SeparateOutputConfig `yaml:"separate"`
}

type SeparateOutputConfig struct {
	Stdout []OutputTargetConfig `yaml:"stdout"`
	Stderr []OutputTargetConfig `yaml:"stderr"`
}

type OutputTargetConfig struct {
	Type   string `yaml:"type"`
	Path   string `yaml:"path,omitempty"`
	Format string `yaml:"format"`
}

const (
	defaultMasterPort = 50055
	defaultWaitDelay  = 10 * time.Second
	maxWorkerIDLength = 64
)

// ToMasterConfig maps spec onto a single managed worker
func ToMasterConfig(spec ecosystem.ProcessSpec, options Options) (*MasterConfig, []string, error) {
	workDir, script, err := executable(spec, options)
	if err != nil {
		return nil, nil, err
	}

	restartPolicy := "never"
	if spec.AutoRestartEnabled() {
		restartPolicy = "always"
	}

	var limits *ResourceLimits
	if spec.MaxMemoryRestart != 0 {
		if spec.MaxMemoryRestart.Bytes() > math.MaxInt64 {
			return nil, nil, errors.NewValidationError("memory ceiling does not fit max_rss", nil).
				WithContext("app", spec.Name).
				WithContext("max_memory_restart", spec.MaxMemoryRestart.String())
		}
		limits = &ResourceLimits{
			Memory: &MemoryLimits{
				MaxRSS: int64(spec.MaxMemoryRestart.Bytes()),
				Policy: "restart",
			},
		}
	}

	name := spec.ResolvedName(options.Env)
	enabled := true
	worker := WorkerConfig{
		ID:          WorkerID(name),
		Type:        "managed",
		ProfileType: "default",
		Enabled:     &enabled,
		Unit: WorkerUnitConfig{
			Managed: &ManagedUnit{
				Metadata: UnitMetadata{
					Name:        name,
					Description: description(spec, options),
				},
				Control: ManagedProcessControlConfig{
					Execution: ExecutionConfig{
						ExecutablePath:   script,
						Args:             append([]string(nil), spec.Args...),
						Environment:      spec.Environment(),
						WorkingDirectory: workDir,
						WaitDelay:        defaultWaitDelay,
					},
					RestartPolicy: restartPolicy,
					Limits:        limits,
				},
			},
		},
	}

	config := &MasterConfig{
		Master: MasterConfigOptions{
			Port:     defaultMasterPort,
			LogLevel: "info",
		},
		Workers:       []WorkerConfig{worker},
		LogCollection: masterLogCollection(options),
	}

	warnings := commonWarnings(spec)
	if spec.PreStop != "" {
		warnings = append(warnings, "pre_stop: managed workers have no pre-stop hook")
	}
	return config, warnings, nil
}

func masterLogCollection(options Options) *LogCollectionConfig {
	paths := options.Paths
	if paths.StdoutTarget() == "" && paths.StderrTarget() == "" {
		return nil
	}

	fileTarget := func(path string) OutputTargetConfig {
		return OutputTargetConfig{Type: "file", Path: path, Format: "plain"}
	}

	var stdout, stderr []OutputTargetConfig
	if path := paths.StdoutTarget(); path != "" {
		stdout = append(stdout, fileTarget(path))
	}
	if path := paths.StderrTarget(); path != "" {
		stderr = append(stderr, fileTarget(path))
	}
	if paths.CombinedCopy() {
		stdout = append(stdout, fileTarget(paths.Combined))
		stderr = append(stderr, fileTarget(paths.Combined))
	}

	return &LogCollectionConfig{
		Enabled: true,
		DefaultWorker: WorkerLogConfig{
			Enabled:       true,
			CaptureStdout: len(stdout) > 0,
			CaptureStderr: len(stderr) > 0,
			Outputs: OutputConfig{
				Separate: SeparateOutputConfig{Stdout: stdout, Stderr: stderr},
			},
		},
	}
}

// WorkerID maps a process label onto the worker ID alphabet: letters, digits, '-' and '_', at most 64 characters
func WorkerID(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	id := b.String()
	if len(id) > maxWorkerIDLength {
		id = id[:maxWorkerIDLength]
	}
	return id
}

func renderMaster(spec ecosystem.ProcessSpec, options Options) (*Result, error) {
	config, warnings, err := ToMasterConfig(spec, options)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(config); err != nil {
		return nil, errors.NewInternalError("failed to encode master configuration", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, errors.NewInternalError("failed to encode master configuration", err)
	}

	return &Result{Content: buf.Bytes(), Warnings: warnings}, nil
}
