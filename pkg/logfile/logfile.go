package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cywhale/woa23/pkg/ecosystem"
	"github.com/cywhale/woa23/pkg/errors"
	"github.com/cywhale/woa23/pkg/logging"
)

// DefaultAppName names the log subdirectory when none is configured
const DefaultAppName = "woa23"

// Config selects where default log files go when a process spec leaves them unset
type Config struct {
	// Base directory for logs. If empty, uses OS-appropriate default
	BaseDirectory string

	// Service context - affects directory selection
	ServiceContext ServiceContext

	// Application name for subdirectory creation
	AppName string

	// Create subdirectory for the app (recommended for system services)
	UseSubdirectory bool
}

// ServiceContext defines the context in which the supervisor runs
type ServiceContext string

const (
	SystemService  ServiceContext = "system"
	UserService    ServiceContext = "user"
	SessionService ServiceContext = "session"
)

// Paths are the resolved log destinations of one process
type Paths struct {
	Combined string // empty when no combined log is configured
	Stdout   string
	Stderr   string
	Merge    bool
}

// StdoutTarget is where the supervisor sends the process stdout
func (p Paths) StdoutTarget() string {
	if p.Merge && p.Combined != "" {
		return p.Combined
	}
	return p.Stdout
}

// StderrTarget is where the supervisor sends the process stderr.
// Merged logs share the stdout stream.
func (p Paths) StderrTarget() string {
	if p.Merge {
		return p.StdoutTarget()
	}
	return p.Stderr
}

// CombinedCopy reports whether the combined log is written in addition to the per-stream files
func (p Paths) CombinedCopy() bool {
	return p.Combined != "" && !p.Merge
}

// Destinations lists every distinct file the supervisor writes, in a stable order
func (p Paths) Destinations() []string {
	candidates := []string{p.StdoutTarget(), p.StderrTarget()}
	if p.CombinedCopy() {
		candidates = append(candidates, p.Combined)
	}

	seen := make(map[string]bool)
	var destinations []string
	for _, path := range candidates {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		destinations = append(destinations, path)
	}
	return destinations
}

// Manager resolves log destinations for process specs
type Manager struct {
	config Config
	logger logging.Logger
}

func NewManager(config Config, logger logging.Logger) *Manager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}

	return &Manager{
		config: config,
		logger: logging.OrNop(logger),
	}
}

// LogDirectory is where default log files are placed
func (m *Manager) LogDirectory() string {
	baseDir := m.getLogBaseDirectory()
	if m.config.UseSubdirectory {
		return filepath.Join(baseDir, m.config.AppName, "logs")
	}
	return baseDir
}

// DefaultPaths mirrors the supervisor convention of <name>-out.log and <name>-error.log
func (m *Manager) DefaultPaths(name string) Paths {
	dir := m.LogDirectory()
	return Paths{
		Stdout: filepath.Join(dir, name+"-out.log"),
		Stderr: filepath.Join(dir, name+"-error.log"),
	}
}

// Resolve turns the log options of spec into absolute destinations.
// Relative paths resolve against the spec cwd, which itself resolves against baseDir.
func (m *Manager) Resolve(spec ecosystem.ProcessSpec, baseDir string) (Paths, error) {
	root, err := WorkingDirectory(spec.Cwd, baseDir)
	if err != nil {
		return Paths{}, err
	}

	logs := spec.Logging()
	defaults := m.DefaultPaths(spec.Name)
	paths := Paths{
		Combined: ResolvePath(root, logs.Combined),
		Stdout:   ResolvePath(root, logs.Stdout),
		Stderr:   ResolvePath(root, logs.Stderr),
		Merge:    logs.Merge,
	}
	if paths.Stdout == "" {
		paths.Stdout = defaults.Stdout
	}
	if paths.Stderr == "" {
		paths.Stderr = defaults.Stderr
	}

	m.logger.Debugf("Resolved log paths, app: %s, stdout: %s, stderr: %s, combined: %s, merge: %v",
		spec.Name, paths.StdoutTarget(), paths.StderrTarget(), paths.Combined, paths.Merge)
	return paths, nil
}

// WorkingDirectory is the absolute directory a process runs in: cwd, resolved against baseDir when relative
func WorkingDirectory(cwd, baseDir string) (string, error) {
	if baseDir == "" {
		baseDir = "."
	}
	root := baseDir
	if cwd != "" {
		if filepath.IsAbs(cwd) {
			root = cwd
		} else {
			root = filepath.Join(baseDir, cwd)
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.NewIOError("failed to resolve working directory", err).WithContext("directory", root)
	}
	return abs, nil
}

func ResolvePath(root, path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

// Check verifies that every destination can be written, creating missing
// directories the way the supervisor would. Log content is never written.
func (m *Manager) Check(paths Paths) error {
	collection := errors.NewErrorCollection()
	for _, path := range paths.Destinations() {
		if err := ValidateLogFile(path); err != nil {
			m.logger.Warnf("Log destination not writable, path: %s, error: %v", path, err)
			collection.Add(err)
			continue
		}
		m.logger.Debugf("Log destination writable, path: %s", path)
	}
	return collection.ToError()
}

// ValidateLogFile validates that the log file directory exists (creating it if
// needed) and is writable, and that an existing log file is a regular file
func ValidateLogFile(path string) error {
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.NewIOError("failed to create log directory", err).WithContext("directory", dir)
			}
		} else {
			return errors.NewIOError("failed to access log directory", err).WithContext("directory", dir)
		}
	} else if !info.IsDir() {
		return errors.NewValidationError("log directory path is not a directory", nil).WithContext("path", dir)
	}

	if info, err := os.Stat(path); err == nil {
		if !info.Mode().IsRegular() {
			return errors.NewValidationError("log destination exists and is not a regular file", nil).WithContext("path", path)
		}
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
		if err != nil {
			return errors.NewPermissionError("log file is not writable", err).WithContext("path", path)
		}
		file.Close()
		return nil
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		return errors.NewPermissionError("log directory is not writable", err).WithContext("directory", dir)
	}
	file.Close()
	os.Remove(testFile)

	return nil
}

// GetRecommendedConfig returns the log directory configuration for a deployment scenario
func GetRecommendedConfig(scenario string, appName string) Config {
	if appName == "" {
		appName = DefaultAppName
	}

	switch strings.ToLower(scenario) {
	case "system", "daemon", "service":
		return Config{
			ServiceContext:  SystemService,
			AppName:         appName,
			UseSubdirectory: true,
		}

	case "session", "desktop":
		return Config{
			ServiceContext: SessionService,
			AppName:        appName,
		}

	case "development", "dev", "test":
		return Config{
			BaseDirectory:  filepath.Join(os.TempDir(), appName+"-dev"),
			ServiceContext: UserService,
			AppName:        appName,
		}

	default:
		return Config{
			ServiceContext:  UserService,
			AppName:         appName,
			UseSubdirectory: true,
		}
	}
}

func (m *Manager) getLogBaseDirectory() string {
	if m.config.BaseDirectory != "" {
		return filepath.Join(m.config.BaseDirectory, "logs")
	}

	switch m.config.ServiceContext {
	case SystemService:
		return getSystemLogDirectory()
	case SessionService:
		return getSessionLogDirectory()
	default:
		return getUserLogDirectory()
	}
}

func getSystemLogDirectory() string {
	if runtime.GOOS == "windows" {
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		return programData
	}
	return "/var/log"
}

func getUserLogDirectory() string {
	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
				localAppData = filepath.Join(userProfile, "AppData", "Local")
			} else {
				localAppData = "C:\\Users\\Default\\AppData\\Local"
			}
		}
		return filepath.Join(localAppData, "logs")

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "/tmp/logs"
		}
		return filepath.Join(homeDir, "Library", "Logs")

	default:
		if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
			return filepath.Join(dataHome, "logs")
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "/tmp/logs"
		}
		return filepath.Join(homeDir, ".local", "share", "logs")
	}
}

func getSessionLogDirectory() string {
	if runtime.GOOS != "linux" {
		return filepath.Join(os.TempDir(), "logs")
	}

	sessionDir := fmt.Sprintf("/run/user/%d", os.Getuid())
	if _, err := os.Stat(sessionDir); err == nil {
		return filepath.Join(sessionDir, "logs")
	}
	return filepath.Join("/tmp", "logs")
}
