// Command apt-log is a tool for viewing and analyzing apt-mock protocol log
// files.
//
// Log files are created by apt-mock when run with the -protocol-log flag.
//
// Usage:
//
//	apt-log <command> [flags] <file.alog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	apt-log view mock.alog
//
//	# View end-of-move messages of channel 2
//	apt-log view -channel 2 -kind MOT_MOVE_COMPLETED,MOT_MOVE_STOPPED mock.alog
//
//	# View only outgoing messages
//	apt-log view -direction out mock.alog
//
//	# Export to CSV
//	apt-log export -format csv -o moves.csv mock.alog
//
//	# Filter by connection and save to new file
//	apt-log filter -conn-id abc12345 -o filtered.alog mock.alog
//
//	# Show statistics
//	apt-log stats mock.alog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/apt-mock/apt-mock-go/cmd/apt-log/commands"
)

const usage = `apt-log - APT Protocol Log Analyzer

Usage:
  apt-log <command> [flags] <file.alog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "apt-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the event selection flags on fs.
func filterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, device, channel)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")
	fs.StringVar(&opts.Kinds, "kind", "", "Filter by message kinds (comma-separated mnemonics or 0x ids)")
	fs.StringVar(&opts.Channel, "channel", "", "Filter by channel id")
	return opts
}

func usageFor(fs *flag.FlagSet, name, synopsis, line string) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "apt-log %s - %s\n\nUsage:\n  %s\n\nFlags:\n", name, synopsis, line)
		fs.PrintDefaults()
	}
}

// pathArg returns the single log file argument or exits.
func pathArg(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	usageFor(fs, "view", "View log file in human-readable format", "apt-log view [flags] <file.alog>")
	opts := filterFlags(fs)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := pathArg(fs)

	if err := commands.RunView(path, *opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	usageFor(fs, "export", "Export log file to JSON or CSV format", "apt-log export [flags] <file.alog>")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	opts := filterFlags(fs)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := pathArg(fs)

	if err := commands.RunExport(path, *format, *output, *opts); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	usageFor(fs, "filter", "Filter log file and write to new file", "apt-log filter [flags] <file.alog>")
	output := fs.String("o", "", "Output file (required)")
	opts := filterFlags(fs)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := pathArg(fs)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunFilter(path, *output, *opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `apt-log stats - Show statistics about the log file

Usage:
  apt-log stats <file.alog>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := pathArg(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
