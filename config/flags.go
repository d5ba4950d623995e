package config

import (
	"flag"
	"io"

	"github.com/pkg/errors"
)

// Commands accepted on the command line.
const (
	CommandRun    = "run"
	CommandPaper  = "paper"
	CommandLive   = "live"
	CommandAPI    = "api"
	CommandReport = "report"
	CommandSetup  = "setup"
)

// Flags parsed command line.
type Flags struct {
	Command    string
	ConfigPath string
	// ReportKind is daily or weekly for the report command.
	ReportKind string
	// Output is where the setup wizard writes its YAML.
	Output string
}

// ParseFlags parses "[command] [flags]". The command defaults to run.
func ParseFlags(args []string, stderr io.Writer) (Flags, error) {
	f := Flags{Command: CommandRun}
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		f.Command = args[0]
		args = args[1:]
	}

	switch f.Command {
	case CommandRun, CommandPaper, CommandLive, CommandAPI, CommandReport, CommandSetup:
	default:
		return Flags{}, errors.Errorf("unknown command %q", f.Command)
	}

	fs := flag.NewFlagSet(f.Command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.ConfigPath, "config", "", "path to yaml config")
	fs.StringVar(&f.ReportKind, "kind", "daily", "report kind for the report command: daily or weekly")
	fs.StringVar(&f.Output, "out", "config.gen.yaml", "file written by the setup command")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if f.ReportKind != "daily" && f.ReportKind != "weekly" {
		return Flags{}, errors.Errorf("unknown report kind %q", f.ReportKind)
	}
	return f, nil
}
