package logfile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/cywhale/woa23/pkg/ecosystem"
	"github.com/cywhale/woa23/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LogFileMockLogger is a no-op logging.Logger for tests
type LogFileMockLogger struct{}

func (m *LogFileMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *LogFileMockLogger) Debugf(format string, args ...interface{})               {}
func (m *LogFileMockLogger) Infof(format string, args ...interface{})                {}
func (m *LogFileMockLogger) Warnf(format string, args ...interface{})                {}
func (m *LogFileMockLogger) Errorf(format string, args ...interface{})               {}

func woa23Spec() ecosystem.ProcessSpec {
	return ecosystem.ProcessSpec{
		Name:      "woa23",
		Script:    "./conf/start_app.sh",
		MergeLogs: true,
		LogFile:   "tmp/woa23.outerr.log",
		OutFile:   "tmp/woa23.log",
		ErrorFile: "tmp/woa23_err.log",
	}
}

func TestNewManager_WithDefaults(t *testing.T) {
	manager := NewManager(Config{}, nil)

	assert.Equal(t, DefaultAppName, manager.config.AppName)
	assert.Equal(t, UserService, manager.config.ServiceContext)
}

func TestLogDirectory(t *testing.T) {
	manager := NewManager(Config{BaseDirectory: "/srv/woa23"}, &LogFileMockLogger{})
	assert.Equal(t, filepath.Join("/srv/woa23", "logs"), manager.LogDirectory())

	manager = NewManager(Config{BaseDirectory: "/srv", AppName: "woa23", UseSubdirectory: true}, &LogFileMockLogger{})
	assert.Equal(t, filepath.Join("/srv", "logs", "woa23", "logs"), manager.LogDirectory())

	for _, scenario := range []string{"system", "user", "session", "development"} {
		manager := NewManager(GetRecommendedConfig(scenario, "woa23"), &LogFileMockLogger{})
		assert.NotEmpty(t, manager.LogDirectory(), scenario)
	}
}

func TestResolve_WOA23(t *testing.T) {
	base := t.TempDir()
	manager := NewManager(Config{BaseDirectory: base}, &LogFileMockLogger{})

	paths, err := manager.Resolve(woa23Spec(), base)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "tmp", "woa23.outerr.log"), paths.Combined)
	assert.Equal(t, filepath.Join(base, "tmp", "woa23.log"), paths.Stdout)
	assert.Equal(t, filepath.Join(base, "tmp", "woa23_err.log"), paths.Stderr)

	// merged logs send both streams to the combined file
	assert.Equal(t, paths.Combined, paths.StdoutTarget())
	assert.Equal(t, paths.Combined, paths.StderrTarget())
	assert.False(t, paths.CombinedCopy())
	assert.Equal(t, []string{paths.Combined}, paths.Destinations())
}

func TestResolve_SeparateStreams(t *testing.T) {
	base := t.TempDir()
	manager := NewManager(Config{BaseDirectory: base}, &LogFileMockLogger{})

	spec := woa23Spec()
	spec.MergeLogs = false
	paths, err := manager.Resolve(spec, base)
	require.NoError(t, err)

	assert.Equal(t, paths.Stdout, paths.StdoutTarget())
	assert.Equal(t, paths.Stderr, paths.StderrTarget())
	assert.True(t, paths.CombinedCopy())
	assert.Equal(t, []string{paths.Stdout, paths.Stderr, paths.Combined}, paths.Destinations())
}

func TestResolve_MergeWithoutCombined(t *testing.T) {
	paths := Paths{Stdout: "/l/out.log", Stderr: "/l/err.log", Merge: true}
	assert.Equal(t, "/l/out.log", paths.StdoutTarget())
	assert.Equal(t, "/l/out.log", paths.StderrTarget())
	assert.Equal(t, []string{"/l/out.log"}, paths.Destinations())
}

func TestResolve_DefaultsAndCwd(t *testing.T) {
	base := t.TempDir()
	manager := NewManager(Config{BaseDirectory: base}, &LogFileMockLogger{})

	spec := ecosystem.ProcessSpec{Name: "api", Script: "./api", Cwd: "svc", OutFile: "out.log"}
	paths, err := manager.Resolve(spec, base)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "svc", "out.log"), paths.Stdout)
	assert.Equal(t, filepath.Join(base, "logs", "api-error.log"), paths.Stderr)
	assert.Empty(t, paths.Combined)

	if runtime.GOOS != "windows" {
		spec.Cwd = "/opt/api"
		paths, err = manager.Resolve(spec, base)
		require.NoError(t, err)
		assert.Equal(t, "/opt/api/out.log", paths.Stdout)

		spec.OutFile = "/var/log/api.log"
		paths, err = manager.Resolve(spec, base)
		require.NoError(t, err)
		assert.Equal(t, "/var/log/api.log", paths.Stdout)
	}
}

func TestCheck_CreatesDirectories(t *testing.T) {
	base := t.TempDir()
	manager := NewManager(Config{BaseDirectory: base}, &LogFileMockLogger{})

	paths, err := manager.Resolve(woa23Spec(), base)
	require.NoError(t, err)

	require.NoError(t, manager.Check(paths))

	info, err := os.Stat(filepath.Join(base, "tmp"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// the check must not create the log files themselves
	_, err = os.Stat(paths.Combined)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(base, "tmp", ".write_test"))
	assert.True(t, os.IsNotExist(err))
}

func TestCheck_ExistingFile(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0644))

	require.NoError(t, ValidateLogFile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous run\n", string(content))
}

func TestCheck_Failures(t *testing.T) {
	base := t.TempDir()

	// destination is a directory
	dirAsFile := filepath.Join(base, "taken")
	require.NoError(t, os.Mkdir(dirAsFile, 0755))
	err := ValidateLogFile(dirAsFile)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	// parent is a file
	parentFile := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(parentFile, nil, 0644))
	err = ValidateLogFile(filepath.Join(parentFile, "app.log"))
	require.Error(t, err)

	manager := NewManager(Config{}, &LogFileMockLogger{})
	err = manager.Check(Paths{Stdout: dirAsFile, Stderr: filepath.Join(parentFile, "err.log")})
	require.Error(t, err)
	collection, ok := err.(*errors.ErrorCollection)
	require.True(t, ok)
	assert.Len(t, collection.Errors, 2)
}

func TestGetRecommendedConfig(t *testing.T) {
	config := GetRecommendedConfig("system", "")
	assert.Equal(t, SystemService, config.ServiceContext)
	assert.Equal(t, DefaultAppName, config.AppName)
	assert.True(t, config.UseSubdirectory)

	config = GetRecommendedConfig("dev", "woa23")
	assert.Equal(t, filepath.Join(os.TempDir(), "woa23-dev"), config.BaseDirectory)

	config = GetRecommendedConfig("desktop", "woa23")
	assert.Equal(t, SessionService, config.ServiceContext)

	config = GetRecommendedConfig("anything", "woa23")
	assert.Equal(t, UserService, config.ServiceContext)
}
