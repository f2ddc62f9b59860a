package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cywhale/woa23/conf"
	"github.com/cywhale/woa23/pkg/dateformat"
	"github.com/cywhale/woa23/pkg/ecosystem"
	"github.com/cywhale/woa23/pkg/export"
	"github.com/cywhale/woa23/pkg/hostcheck"
	"github.com/cywhale/woa23/pkg/logfile"
	"github.com/cywhale/woa23/pkg/logging"
	"github.com/cywhale/woa23/pkg/watch"
)

const (
	exitOK      = 0
	exitInvalid = 1
	exitUsage   = 2
)

type cli struct {
	stdout      io.Writer
	logger      logging.Logger
	totalMemory hostcheck.MemoryFunc
	clock       func() time.Time
}

func (c *cli) now() time.Time {
	if c.clock == nil {
		return time.Now()
	}
	return c.clock()
}

// load reads file, or the embedded woa23 record when file is empty
func (c *cli) load(file string) (*ecosystem.Ecosystem, error) {
	if file == "" {
		c.logger.Debugf("No ecosystem file given, using the embedded %s record", conf.AppName)
		return conf.Default()
	}
	return ecosystem.Load(file)
}

func (c *cli) validate(ctx context.Context, opts validateOptions) int {
	if opts.Watch && opts.File == "" {
		c.logger.Errorf("--watch needs --file")
		return exitUsage
	}

	eco, err := c.load(opts.File)
	if err == nil {
		err = c.checkEcosystem(eco, opts)
	}
	if err != nil {
		c.logger.Errorf("Ecosystem is invalid, file: %s, error: %v", opts.File, err)
		if !opts.Watch {
			return exitInvalid
		}
	} else {
		fmt.Fprintf(c.stdout, "ok: %d app(s): %v\n", eco.Len(), eco.Names())
	}

	if !opts.Watch {
		return exitOK
	}
	return c.watch(ctx, opts)
}

// checkEcosystem runs the advisory host checks and, when asked, the log path checks
func (c *cli) checkEcosystem(eco *ecosystem.Ecosystem, opts validateOptions) error {
	checker := hostcheck.NewChecker(c.totalMemory, c.logger)
	for _, warning := range checker.CheckEcosystem(eco) {
		c.logger.Warnf("Host check: %s", warning)
	}

	if !opts.CheckPaths {
		return nil
	}
	manager := c.logFileManager(opts.LogContext, opts.LogDir)
	for _, spec := range eco.Apps() {
		paths, err := manager.Resolve(spec, eco.BaseDir())
		if err != nil {
			return err
		}
		if err := manager.Check(paths); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) watch(ctx context.Context, opts validateOptions) int {
	watcher, err := watch.NewWatcher(opts.File, c.logger)
	if err != nil {
		c.logger.Errorf("Failed to create watcher: %v", err)
		return exitInvalid
	}
	if err := watcher.Start(ctx); err != nil {
		c.logger.Errorf("Failed to start watcher: %v", err)
		return exitInvalid
	}

	// The first event repeats the load done by validate
	first := true
	for event := range watcher.Events() {
		if first {
			first = false
			continue
		}
		if event.Err == nil {
			event.Err = c.checkEcosystem(event.Ecosystem, opts)
		}
		if event.Err != nil {
			c.logger.Errorf("Ecosystem is invalid, file: %s, error: %v", opts.File, event.Err)
			continue
		}
		fmt.Fprintf(c.stdout, "ok: %d app(s), changed: %v\n", event.Ecosystem.Len(), event.Changed)
	}
	return exitOK
}

func (c *cli) show(opts showOptions) int {
	eco, err := c.load(opts.File)
	if err != nil {
		c.logger.Errorf("Failed to load ecosystem, file: %s, error: %v", opts.File, err)
		return exitInvalid
	}
	format, err := ecosystem.ParseFormat(opts.Format)
	if err != nil {
		c.logger.Errorf("%v", err)
		return exitUsage
	}

	var data []byte
	if opts.App == "" {
		for _, spec := range eco.Apps() {
			c.describe(spec, opts.Env)
		}
		data, err = eco.Marshal(format)
	} else {
		var spec ecosystem.ProcessSpec
		spec, err = eco.Find(opts.App)
		if err == nil {
			c.describe(spec, opts.Env)
			data, err = ecosystem.MarshalSpec(spec, format)
		}
	}
	if err != nil {
		c.logger.Errorf("Failed to show ecosystem: %v", err)
		return exitInvalid
	}

	if _, err := c.stdout.Write(data); err != nil {
		c.logger.Errorf("Failed to write output: %v", err)
		return exitInvalid
	}
	return exitOK
}

// describe logs how the supervisor will label the app and stamp its log lines
func (c *cli) describe(spec ecosystem.ProcessSpec, env string) {
	logs := spec.Logging()
	if logs.DateFormat == "" {
		c.logger.Infof("App %s runs as %s", spec.Name, spec.ResolvedName(env))
		return
	}
	stamp, err := dateformat.Format(c.now(), logs.DateFormat)
	if err != nil {
		c.logger.Warnf("App %s has an unusable log_date_format: %v", spec.Name, err)
		return
	}
	c.logger.Infof("App %s runs as %s, log lines stamped like %q", spec.Name, spec.ResolvedName(env), stamp)
}

func (c *cli) export(opts exportOptions) int {
	target, err := export.ParseTarget(opts.Target)
	if err != nil {
		c.logger.Errorf("%v", err)
		return exitUsage
	}

	eco, err := c.load(opts.File)
	if err != nil {
		c.logger.Errorf("Failed to load ecosystem, file: %s, error: %v", opts.File, err)
		return exitInvalid
	}
	spec, err := eco.Select(opts.App)
	if err != nil {
		c.logger.Errorf("Failed to select app: %v", err)
		return exitInvalid
	}

	paths, err := c.logFileManager(opts.LogContext, opts.LogDir).Resolve(spec, eco.BaseDir())
	if err != nil {
		c.logger.Errorf("Failed to resolve log paths: %v", err)
		return exitInvalid
	}

	result, err := export.Render(target, spec, export.Options{
		Env:     opts.Env,
		BaseDir: eco.BaseDir(),
		Paths:   paths,
		Source:  eco.Source(),
	}, c.logger)
	if err != nil {
		c.logger.Errorf("Failed to export app %s: %v", spec.Name, err)
		return exitInvalid
	}

	if _, err := c.stdout.Write(result.Content); err != nil {
		c.logger.Errorf("Failed to write output: %v", err)
		return exitInvalid
	}
	return exitOK
}

// logFileManager places default log files by service context; an explicit directory wins
func (c *cli) logFileManager(logContext, logDir string) *logfile.Manager {
	config := logfile.GetRecommendedConfig(logContext, conf.AppName)
	if logDir != "" {
		config.BaseDirectory = logDir
		config.UseSubdirectory = false
	}
	return logfile.NewManager(config, c.logger)
}
