package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sprintfLogging "github.com/core-tools/hsu-core/pkg/logging/sprintf"

	"github.com/cywhale/woa23/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	LogLevel  string `long:"log-level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"log level"`
	LogFormat string `long:"log-format" default:"console" choice:"console" choice:"json" description:"log encoding"`

	Validate validateOptions `command:"validate" description:"load and validate an ecosystem file"`
	Show     showOptions     `command:"show" description:"print the validated ecosystem or one app"`
	Export   exportOptions   `command:"export" description:"render one app for a supervisor"`
}

type validateOptions struct {
	File       string `long:"file" short:"f" description:"ecosystem file, the embedded woa23 record when empty"`
	CheckPaths bool   `long:"check-paths" description:"verify that log destinations are writable"`
	LogDir     string `long:"log-dir" description:"directory for default log files, overrides --log-context"`
	LogContext string `long:"log-context" default:"user" choice:"system" choice:"user" choice:"session" choice:"development" description:"service context that picks the default log directory"`
	Watch      bool   `long:"watch" description:"re-validate whenever the file changes"`
}

type showOptions struct {
	File   string `long:"file" short:"f" description:"ecosystem file, the embedded woa23 record when empty"`
	App    string `long:"app" description:"app to show, all apps when empty"`
	Env    string `long:"env" description:"deployment environment for append_env_to_name"`
	Format string `long:"format" default:"yaml" choice:"yaml" choice:"json" description:"output format"`
}

type exportOptions struct {
	File   string `long:"file" short:"f" description:"ecosystem file, the embedded woa23 record when empty"`
	App    string `long:"app" description:"app to export, required when the file defines several"`
	Env    string `long:"env" description:"deployment environment for append_env_to_name"`
	Target string `long:"target" required:"true" choice:"master" choice:"systemd" description:"supervisor to export for"`
	LogDir     string `long:"log-dir" description:"directory for default log files, overrides --log-context"`
	LogContext string `long:"log-context" default:"user" choice:"system" choice:"user" choice:"session" choice:"development" description:"service context that picks the default log directory"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-ecoctl , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(2)
	}

	bootLogger := sprintfLogging.NewStdSprintfLogger()

	zapConfig := logging.DefaultZapConfig()
	zapConfig.Level = opts.LogLevel
	zapConfig.Format = opts.LogFormat
	baseLogger, syncLogger, err := logging.NewZapLogger(zapConfig)
	if err != nil {
		bootLogger.Errorf("Failed to configure logging: %v", err)
		os.Exit(2)
	}
	defer func() { _ = syncLogger() }()

	logger := logging.WithPrefix(baseLogger, logPrefix("woa23"))
	logger.Debugf("opts: %+v", opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli{stdout: os.Stdout, logger: logger}

	var code int
	switch parser.Active.Name {
	case "validate":
		code = app.validate(ctx, opts.Validate)
	case "show":
		code = app.show(opts.Show)
	case "export":
		code = app.export(opts.Export)
	}

	stop()
	_ = syncLogger()
	os.Exit(code)
}
