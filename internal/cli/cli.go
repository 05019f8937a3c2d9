package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/vk/bert/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// varsFlag collects repeated --var key=value arguments.
type varsFlag map[string]any

func (v varsFlag) String() string {
	parts := make([]string, 0, len(v))
	for k, val := range v {
		parts = append(parts, fmt.Sprintf("%s=%v", k, val))
	}
	return strings.Join(parts, ",")
}

func (v varsFlag) Set(s string) error {
	k, val, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return errors.New("expected key=value")
	}
	v[k] = val
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("bert", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
bert - A declarative, cacheable container image builder.

Usage:
  bert [options] [PATH...]

Arguments:
  PATH
    Build document, or a directory holding bert-build.yml. Defaults to the
    current directory.

Options:
`)
		flagSet.PrintDefaults()
	}

	vars := varsFlag{}
	var shellOnFailure bool
	flagSet.BoolVar(&shellOnFailure, "shell-on-failure", false, "Open a debug shell in the failed container when a task fails.")
	flagSet.BoolVar(&shellOnFailure, "s", false, "Open a debug shell on failure (shorthand).")
	nonInteractiveFlag := flagSet.Bool("non-interactive", false, "Never attach a terminal to build containers.")
	flagSet.Var(vars, "var", "Set a build variable as key=value. May be repeated.")
	envFileFlag := flagSet.String("env-file", "", "Dotenv file whose variables overlay the environment seen by templates.")
	eventsURLFlag := flagSet.String("events-url", "", "Socket.io endpoint receiving build events.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	paths := flagSet.Args()
	if len(paths) == 0 {
		paths = []string{"."}
	}
	slog.Debug("Build paths determined.", "paths", paths)

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	var environ map[string]string
	if *envFileFlag != "" {
		var err error
		if environ, err = godotenv.Read(*envFileFlag); err != nil {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("failed to read env file: %v", err)}
		}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		Paths:          paths,
		ShellOnFailure: shellOnFailure,
		NonInteractive: *nonInteractiveFlag,
		Vars:           vars,
		Environ:        environ,
		EventsURL:      *eventsURLFlag,
		LogFormat:      logFormat,
		LogLevel:       logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
