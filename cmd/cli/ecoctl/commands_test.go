package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/cywhale/woa23/conf"
	"github.com/cywhale/woa23/pkg/logging"

	json "github.com/goccy/go-json"
	flags "github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLogger keeps formatted info messages
type recordingLogger struct {
	infos []string
}

func (l *recordingLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (l *recordingLogger) Debugf(format string, args ...interface{})               {}
func (l *recordingLogger) Infof(format string, args ...interface{}) {
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}
func (l *recordingLogger) Warnf(format string, args ...interface{})  {}
func (l *recordingLogger) Errorf(format string, args ...interface{}) {}

func newTestCLI() (*cli, *bytes.Buffer) {
	var out bytes.Buffer
	return &cli{
		stdout:      &out,
		logger:      logging.NopLogger(),
		totalMemory: func() (uint64, error) { return 16 << 30, nil },
	}, &out
}

func writeEcosystem(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ecosystem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		command string
	}{
		{name: "validate", args: []string{"validate", "--check-paths"}, command: "validate"},
		{name: "log context", args: []string{"export", "--target", "master", "--log-context", "system"}, command: "export"},
		{name: "unknown log context", args: []string{"export", "--target", "master", "--log-context", "cloud"}, wantErr: true},
		{name: "show json", args: []string{"--log-format", "json", "show", "--format", "json"}, command: "show"},
		{name: "export", args: []string{"export", "--target", "systemd", "--env", "prod"}, command: "export"},
		{name: "export without target", args: []string{"export"}, wantErr: true},
		{name: "unknown target", args: []string{"export", "--target", "docker"}, wantErr: true},
		{name: "unknown log level", args: []string{"--log-level", "trace", "validate"}, wantErr: true},
		{name: "no command", args: []string{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts flagOptions
			parser := flags.NewParser(&opts, flags.HelpFlag)
			_, err := parser.ParseArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.command, parser.Active.Name)
			assert.Equal(t, "info", opts.LogLevel)
		})
	}
}

func TestValidate_EmbeddedRecord(t *testing.T) {
	app, out := newTestCLI()

	code := app.validate(context.Background(), validateOptions{})

	assert.Equal(t, exitOK, code)
	assert.Equal(t, "ok: 1 app(s): [woa23]\n", out.String())
}

func TestValidate_InvalidFile(t *testing.T) {
	path := writeEcosystem(t, "apps:\n  - name: woa23\n    script: ./conf/start_app.sh\n    max_memory_restart: 4X\n")
	app, out := newTestCLI()

	code := app.validate(context.Background(), validateOptions{File: path})

	assert.Equal(t, exitInvalid, code)
	assert.Empty(t, out.String())
}

func TestValidate_MissingFile(t *testing.T) {
	app, _ := newTestCLI()

	code := app.validate(context.Background(), validateOptions{File: filepath.Join(t.TempDir(), "missing.yaml")})

	assert.Equal(t, exitInvalid, code)
}

func TestValidate_WatchNeedsFile(t *testing.T) {
	app, _ := newTestCLI()

	assert.Equal(t, exitUsage, app.validate(context.Background(), validateOptions{Watch: true}))
}

func TestValidate_CheckPaths(t *testing.T) {
	path := writeEcosystem(t, string(conf.EcosystemYAML()))
	app, out := newTestCLI()

	code := app.validate(context.Background(), validateOptions{File: path, CheckPaths: true})

	assert.Equal(t, exitOK, code)
	assert.Contains(t, out.String(), "ok: 1 app(s)")
	assert.DirExists(t, filepath.Join(filepath.Dir(path), "tmp"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), "tmp", "woa23.outerr.log"))
}

func TestShow(t *testing.T) {
	app, out := newTestCLI()

	code := app.show(showOptions{App: "woa23", Format: "json"})
	require.Equal(t, exitOK, code)

	var doc struct {
		Apps []map[string]interface{} `json:"apps"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	require.Len(t, doc.Apps, 1)
	assert.Equal(t, "woa23", doc.Apps[0]["name"])
	assert.Equal(t, "4G", doc.Apps[0]["max_memory_restart"])
	assert.Equal(t, true, doc.Apps[0]["autorestart"])
}

func TestShow_UnknownApp(t *testing.T) {
	app, out := newTestCLI()

	assert.Equal(t, exitInvalid, app.show(showOptions{App: "missing", Format: "yaml"}))
	assert.Empty(t, out.String())
}

func TestExport(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		contains []string
	}{
		{
			name:   "systemd",
			target: "systemd",
			contains: []string{
				"SyslogIdentifier=woa23-production",
				"MemoryMax=4G",
				"Restart=always",
				"ExecStop=/bin/sh -c",
			},
		},
		{
			name:   "master",
			target: "master",
			contains: []string{
				"id: woa23-production",
				"restart_policy: always",
				"max_rss: 4294967296",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeEcosystem(t, string(conf.EcosystemYAML()))
			app, out := newTestCLI()

			code := app.export(exportOptions{File: path, Env: "production", Target: tt.target})

			require.Equal(t, exitOK, code)
			for _, s := range tt.contains {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestExport_SeveralAppsNeedName(t *testing.T) {
	path := writeEcosystem(t, "apps:\n  - name: a\n    script: ./a\n  - name: b\n    script: ./b\n")
	app, _ := newTestCLI()

	assert.Equal(t, exitInvalid, app.export(exportOptions{File: path, Target: "systemd"}))
	assert.Equal(t, exitOK, app.export(exportOptions{File: path, App: "b", Target: "systemd"}))
}

func TestExport_DefaultLogDirectoryFollowsContext(t *testing.T) {
	path := writeEcosystem(t, "apps:\n  - name: api\n    script: ./api\n")
	logDir := t.TempDir()

	tests := []struct {
		name     string
		context  string
		logDir   string
		expected string
	}{
		{
			name:     "development",
			context:  "development",
			expected: filepath.Join(os.TempDir(), "woa23-dev", "logs", "api-out.log"),
		},
		{
			name:     "system",
			context:  "system",
			expected: "/var/log/woa23/logs/api-out.log",
		},
		{
			name:     "explicit directory wins",
			context:  "system",
			logDir:   logDir,
			expected: filepath.Join(logDir, "logs", "api-out.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.context == "system" && tt.logDir == "" && runtime.GOOS == "windows" {
				t.Skip("system log directory differs on windows")
			}
			app, out := newTestCLI()

			code := app.export(exportOptions{File: path, Target: "systemd", LogContext: tt.context, LogDir: tt.logDir})

			require.Equal(t, exitOK, code)
			assert.Contains(t, out.String(), "StandardOutput=append:"+tt.expected)
		})
	}
}

func TestValidate_CheckPathsInLogDirectory(t *testing.T) {
	path := writeEcosystem(t, "apps:\n  - name: api\n    script: ./api\n")
	logDir := t.TempDir()
	app, _ := newTestCLI()

	code := app.validate(context.Background(), validateOptions{File: path, CheckPaths: true, LogContext: "user", LogDir: logDir})

	assert.Equal(t, exitOK, code)
	assert.DirExists(t, filepath.Join(logDir, "logs"))
}

func TestShow_DescribesLogTimestamps(t *testing.T) {
	app, _ := newTestCLI()
	logger := &recordingLogger{}
	app.logger = logger
	app.clock = func() time.Time {
		return time.Date(2023, time.July, 9, 8, 5, 7, 0, time.FixedZone("CST", 8*3600))
	}

	require.Equal(t, exitOK, app.show(showOptions{Env: "production", Format: "yaml"}))

	require.NotEmpty(t, logger.infos)
	assert.Contains(t, logger.infos, `App woa23 runs as woa23-production, log lines stamped like "2023-07-09 08:05 +08:00"`)
}
