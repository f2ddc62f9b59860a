package ecosystem

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/cywhale/woa23/pkg/dateformat"
	"github.com/cywhale/woa23/pkg/errors"
)

// Validate checks one process spec and reports every problem it finds.
// Paths are checked for shape only. Whether the script exists is up to the
// supervisor; log locations can be probed separately with logfile.Check.
// The memory ceiling needs no check here: decoding rejects zero and malformed
// quantities, and the zero value means no ceiling.
// Control characters are rejected everywhere except pre_stop, since supervisor
// configs are line based and a newline would start a new setting.
func (s ProcessSpec) Validate() error {
	collection := errors.NewErrorCollection()
	fieldError := func(field, message string, cause error) {
		collection.Add(errors.NewValidationError(message, cause).
			WithContext("app", s.Name).
			WithContext("field", field))
	}

	if strings.TrimSpace(s.Name) == "" {
		fieldError("name", "name is required", nil)
	} else if hasControl(s.Name) {
		fieldError("name", "name contains a control character", nil)
	}

	if s.Script == "" {
		fieldError("script", "script is required", nil)
	} else if err := validatePathShape(s.Script); err != nil {
		fieldError("script", "script must be a file path", err)
	}

	if hasControl(s.Cwd) {
		fieldError("cwd", "cwd contains a control character", nil)
	}

	for _, key := range sortedKeys(s.Env) {
		if key == "" || strings.Contains(key, "=") || hasControl(key) {
			fieldError("env", fmt.Sprintf("invalid environment variable name %q", key), nil)
		} else if hasControl(s.Env[key]) {
			fieldError("env", fmt.Sprintf("environment variable %s contains a control character", key), nil)
		}
	}

	for i, arg := range s.Args {
		if hasControl(arg) {
			fieldError("args", fmt.Sprintf("argument %d contains a control character", i), nil)
		}
	}

	for _, dest := range []struct{ field, path string }{
		{"log_file", s.LogFile},
		{"out_file", s.OutFile},
		{"error_file", s.ErrorFile},
	} {
		if dest.path == "" {
			continue
		}
		if err := validatePathShape(dest.path); err != nil {
			fieldError(dest.field, "log destination must be a file path", err)
		}
	}

	if s.LogDateFormat != "" {
		if _, err := dateformat.ToLayout(s.LogDateFormat); err != nil {
			fieldError("log_date_format", "log date format is not supported", err)
		}
	}

	return collection.ToError()
}

func validatePathShape(path string) error {
	if hasControl(path) {
		return fmt.Errorf("path %q contains a control character", path)
	}
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(os.PathSeparator)) {
		return fmt.Errorf("path %q names a directory", path)
	}
	return nil
}

// Validate checks every app plus cross-app constraints
func (e *Ecosystem) Validate() error {
	if e == nil {
		return errors.NewValidationError("ecosystem cannot be nil", nil)
	}
	if len(e.apps) == 0 {
		return errors.NewValidationError("ecosystem must define at least one app", nil)
	}

	collection := errors.NewErrorCollection()
	seen := make(map[string]int)
	for i, app := range e.apps {
		if err := app.Validate(); err != nil {
			collection.Add(errors.NewValidationError(fmt.Sprintf("invalid app at index %d", i), err))
		}
		if app.Name == "" {
			continue
		}
		if prev, exists := seen[app.Name]; exists {
			collection.Add(errors.NewValidationError(
				fmt.Sprintf("duplicate app name '%s' found at indices %d and %d", app.Name, prev, i),
				nil,
			))
			continue
		}
		seen[app.Name] = i
	}

	return collection.ToError()
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}
