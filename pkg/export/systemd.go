package export

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/cywhale/woa23/pkg/ecosystem"
	"github.com/cywhale/woa23/pkg/errors"
)

const preStopShell = "/bin/sh"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description={{.Description}}
After=network.target

[Service]
Type=simple
SyslogIdentifier={{.Identifier}}
WorkingDirectory={{.WorkingDirectory}}
ExecStart={{.ExecStart}}
{{- range .Environment}}
Environment={{.}}
{{- end}}
{{- if .ExecStop}}
ExecStop={{.ExecStop}}
{{- end}}
Restart={{.Restart}}
{{- if .MemoryMax}}
MemoryMax={{.MemoryMax}}
{{- end}}
{{- if .StandardOutput}}
StandardOutput={{.StandardOutput}}
{{- end}}
{{- if .StandardError}}
StandardError={{.StandardError}}
{{- end}}

[Install]
WantedBy=multi-user.target
`))

// SystemdUnit holds the already escaped values of a service unit
type SystemdUnit struct {
	Description      string
	Identifier       string
	WorkingDirectory string
	ExecStart        string
	Environment      []string
	ExecStop         string
	Restart          string
	MemoryMax        string
	StandardOutput   string
	StandardError    string
}

// ToSystemdUnit maps spec onto a systemd service unit. The pre-stop hook
// becomes ExecStop, which systemd runs before signalling the main process.
func ToSystemdUnit(spec ecosystem.ProcessSpec, options Options) (*SystemdUnit, []string, error) {
	workDir, script, err := executable(spec, options)
	if err != nil {
		return nil, nil, err
	}

	words := append([]string{script}, spec.Args...)
	quoted := make([]string, 0, len(words))
	for _, word := range words {
		quoted = append(quoted, quoteWord(word))
	}

	unit := &SystemdUnit{
		Description:      escapeSpecifiers(description(spec, options)),
		Identifier:       escapeSpecifiers(spec.ResolvedName(options.Env)),
		WorkingDirectory: escapeSpecifiers(workDir),
		ExecStart:        strings.Join(quoted, " "),
		Restart:          "no",
	}
	if spec.AutoRestartEnabled() {
		unit.Restart = "always"
	}
	if spec.MaxMemoryRestart != 0 {
		// systemd reads K, M, G and T as powers of 1024, same as the ecosystem file
		unit.MemoryMax = spec.MaxMemoryRestart.String()
	}
	for _, pair := range spec.Environment() {
		unit.Environment = append(unit.Environment, quoteEnvironment(pair))
	}
	if spec.PreStop != "" {
		unit.ExecStop = preStopShell + " -c " + quoteWord(spec.PreStop)
	}

	paths := options.Paths
	if path := paths.StdoutTarget(); path != "" {
		unit.StandardOutput = "append:" + escapeSpecifiers(path)
	}
	if path := paths.StderrTarget(); path != "" {
		unit.StandardError = "append:" + escapeSpecifiers(path)
	}

	if err := unit.checkSingleLine(); err != nil {
		return nil, nil, err.WithContext("app", spec.Name)
	}

	warnings := commonWarnings(spec)
	if paths.CombinedCopy() {
		warnings = append(warnings, "log_file: a combined copy next to separate stdout/stderr files is not supported")
	}
	if spec.MaxMemoryRestart != 0 {
		warnings = append(warnings, "max_memory_restart: MemoryMax kills the process at the ceiling; Restart= decides whether it comes back")
	}
	return unit, warnings, nil
}

// checkSingleLine rejects values that would break out of their unit setting
func (u *SystemdUnit) checkSingleLine() *errors.DomainError {
	settings := []struct{ key, value string }{
		{"Description", u.Description},
		{"SyslogIdentifier", u.Identifier},
		{"WorkingDirectory", u.WorkingDirectory},
		{"ExecStart", u.ExecStart},
		{"ExecStop", u.ExecStop},
		{"StandardOutput", u.StandardOutput},
		{"StandardError", u.StandardError},
	}
	for _, env := range u.Environment {
		settings = append(settings, struct{ key, value string }{"Environment", env})
	}

	for _, setting := range settings {
		if strings.ContainsAny(setting.value, "\r\n") {
			return errors.NewValidationError("unit setting would span several lines", nil).
				WithContext("setting", setting.key)
		}
	}
	return nil
}

func renderSystemd(spec ecosystem.ProcessSpec, options Options) (*Result, error) {
	unit, warnings, err := ToSystemdUnit(spec, options)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, unit); err != nil {
		return nil, errors.NewInternalError("failed to render systemd unit", err)
	}
	return &Result{Content: buf.Bytes(), Warnings: warnings}, nil
}

// escapeSpecifiers doubles '%' so systemd does not expand unit specifiers
func escapeSpecifiers(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

// quoteWord renders one command line word for ExecStart/ExecStop.
// '$' is doubled to stop environment expansion.
func quoteWord(word string) string {
	escaped := strings.ReplaceAll(escapeSpecifiers(word), "$", "$$")
	if word != "" && !strings.ContainsAny(word, " \t\n\"'\\;") {
		return escaped
	}

	escaped = strings.ReplaceAll(escaped, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}

// quoteEnvironment renders a KEY=VALUE pair for Environment=
func quoteEnvironment(pair string) string {
	escaped := escapeSpecifiers(pair)
	escaped = strings.ReplaceAll(escaped, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}
