// Package export hands a process spec to a concrete supervision mechanism by
// rendering it in that mechanism's configuration format. Nothing here runs or
// supervises the process.
package export

import (
	"path/filepath"
	"strings"

	"github.com/cywhale/woa23/pkg/ecosystem"
	"github.com/cywhale/woa23/pkg/errors"
	"github.com/cywhale/woa23/pkg/logfile"
	"github.com/cywhale/woa23/pkg/logging"
)

type Target string

const (
	TargetMaster  Target = "master"
	TargetSystemd Target = "systemd"
)

func ParseTarget(s string) (Target, error) {
	switch Target(strings.ToLower(strings.TrimSpace(s))) {
	case TargetMaster:
		return TargetMaster, nil
	case TargetSystemd:
		return TargetSystemd, nil
	default:
		return "", errors.NewValidationError("unsupported export target: "+s, nil).
			WithContext("supported_targets", "master, systemd")
	}
}

// Options carries what the record alone does not say
type Options struct {
	Env     string        // deployment environment, used for append_env_to_name
	BaseDir string        // directory relative script and cwd resolve against
	Paths   logfile.Paths // resolved log destinations
	Source  string        // ecosystem file, mentioned in generated descriptions
}

// Result is the rendered configuration plus options the target cannot express
type Result struct {
	Content  []byte
	Warnings []string
}

// Render validates spec and renders it for target
func Render(target Target, spec ecosystem.ProcessSpec, options Options, logger logging.Logger) (*Result, error) {
	logger = logging.OrNop(logger)

	if err := spec.Validate(); err != nil {
		return nil, errors.NewValidationError("cannot export an invalid process spec", err).WithContext("app", spec.Name)
	}

	target, err := ParseTarget(string(target))
	if err != nil {
		return nil, err
	}

	var result *Result
	switch target {
	case TargetMaster:
		result, err = renderMaster(spec, options)
	case TargetSystemd:
		result, err = renderSystemd(spec, options)
	}
	if err != nil {
		return nil, err
	}

	for _, warning := range result.Warnings {
		logger.Warnf("Export to %s drops an option, app: %s, %s", target, spec.Name, warning)
	}
	logger.Infof("Exported process spec, app: %s, target: %s, bytes: %d", spec.Name, target, len(result.Content))
	return result, nil
}

// executable resolves the working directory and the absolute script path
func executable(spec ecosystem.ProcessSpec, options Options) (workDir string, script string, err error) {
	workDir, err = logfile.WorkingDirectory(spec.Cwd, options.BaseDir)
	if err != nil {
		return "", "", err
	}
	script = logfile.ResolvePath(workDir, spec.Script)
	return workDir, filepath.Clean(script), nil
}

func description(spec ecosystem.ProcessSpec, options Options) string {
	if options.Source == "" {
		return spec.Name
	}
	return spec.Name + " (from " + filepath.Base(options.Source) + ")"
}

func commonWarnings(spec ecosystem.ProcessSpec) []string {
	var warnings []string
	if spec.Watch {
		warnings = append(warnings, "watch: restart on file change is not supported")
	}
	if spec.LogDateFormat != "" {
		warnings = append(warnings, "log_date_format: timestamps are added by the target's own logger")
	}
	return warnings
}
