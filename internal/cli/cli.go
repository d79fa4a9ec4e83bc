package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jasciiz/evox/internal/app"
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

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("evox", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
evox - compiles stateful component operations into pure, cacheable artifacts.

Usage:
  evox [options] [OPERATION]

Arguments:
  OPERATION
    Name of a registered operation to compile and run, e.g. "counter.increment".
    Omit it to list the registered operations.

Options:
`)
		flagSet.PrintDefaults()
	}

	opFlag := flagSet.String("op", "", "Operation to compile and run.")
	manifestsFlag := flagSet.String("manifests", "modules", "Path to a manifest .hcl file or a directory of them.")
	modeFlag := flagSet.String("mode", "trace", "Compilation mode. Options: 'trace' or 'vectorized'.")
	lanesFlag := flagSet.Int("lanes", 4, "Lane count for vectorized runs.")
	seedFlag := flagSet.Uint64("seed", 0, "Random stream seed. 0 uses the artifact's derived seed.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	opName := *opFlag
	if opName == "" && flagSet.NArg() > 0 {
		opName = flagSet.Arg(0)
	}
	slog.Debug("Operation determined.", "operation", opName)

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
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ManifestPath: *manifestsFlag,
		OpName:       opName,
		Mode:         strings.ToLower(*modeFlag),
		Lanes:        *lanesFlag,
		Seed:         *seedFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
