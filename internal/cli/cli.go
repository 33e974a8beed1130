// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing for ragchat.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdAsk
	CmdUpload
	CmdExport
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name as typed.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdUpload:
		return "upload"
	case CmdExport:
		return "export"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string // --config FILE
	URL        string // --url overrides backend.url
	Token      string // --token overrides backend.token
	DocType    string // --doc-type overrides chat.doc_type
	NoHistory  bool
	NoCache    bool
	JSON       bool
	Quiet      bool
	Verbose    bool

	// Command-specific
	Query        string
	Files        []string // ask --file, upload arguments
	Conversation string   // --conversation ID
	Format       string   // export --format
	Output       string   // export --output
	NoWait       bool     // upload --no-wait
	Subcommand   string
	ConfigKey    string
	ConfigVal    string

	// Unknown is set when the first argument was not a command.
	Unknown string

	// Raw args after the command name
	Raw []string
}

const usageText = `ragchat - chat with your documents from the terminal

Usage:
  ragchat                       Start the TUI (default)
  ragchat chat                  Line-based interactive chat
  ragchat ask "question"        Ask a single question
  ragchat upload FILE...        Upload documents for retrieval
  ragchat export ID             Export a conversation
  ragchat config [subcommand]   Show or change configuration
  ragchat version               Show version information

Ask:
  ragchat ask "what did we decide about the launch?"
  ragchat ask -f notes.pdf "summarize this"
  echo "question" | ragchat ask
    -f, --file FILE             Attach a document (repeatable)
    -c, --conversation ID       Continue an existing conversation

Chat:
  ragchat chat [-c ID]          Type /help inside the chat for commands

Upload:
  ragchat upload report.pdf minutes.docx
    --no-wait                   Return once uploaded, do not wait for processing

Export:
  ragchat export ID             Write conversation_<title>_<time>.md
    --format md|json            Output format (default: md, or from --output)
    -o, --output FILE           Output file, "-" for stdout

Config:
  ragchat config show           Show configuration (token masked)
  ragchat config get KEY        Print one value, e.g. backend.url
  ragchat config set KEY VALUE  Change and save one value
  ragchat config keys           List all keys
  ragchat config path           Print the config file path
  ragchat config validate       Check the config file
  ragchat config reset          Restore defaults

Global flags:
  --config FILE                 Use this config file
  --url URL                     Backend URL (env: RAGCHAT_URL)
  --token TOKEN                 Bearer token (env: RAGCHAT_TOKEN)
  --doc-type TYPE               all, meeting, email, document or note
  --no-history                  Do not send conversation history
  --no-cache                    Do not use the local conversation cache
  --json                        Print machine-readable JSON
  -q, --quiet                   Less output
  -v, --verbose                 Log to stderr

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(jsonMode bool) error {
	if jsonMode {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print()
	}
	fmt.Printf("ragchat version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
	fmt.Printf("  Go:         %s\n", runtime.Version())
	return nil
}

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv (without the program name) and returns the command
// and its arguments.
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsedArgs

	case "chat", "repl":
		p := NewArgParser(remaining)
		parsedArgs.Conversation = p.Flag("conversation", "c")
		return CmdChat, parsedArgs

	case "ask", "a":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "upload", "up":
		p := NewArgParser(remaining, "no-wait")
		parsedArgs.Files = p.PositionalFrom(0)
		parsedArgs.NoWait = p.BoolFlag("no-wait")
		return CmdUpload, parsedArgs

	case "export":
		p := NewArgParser(remaining)
		parsedArgs.Conversation = p.Positional(0)
		parsedArgs.Format = strings.ToLower(p.Flag("format", "f"))
		parsedArgs.Output = p.Flag("output", "o")
		return CmdExport, parsedArgs

	case "config":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "version", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		parsedArgs.Unknown = cmd
		return CmdHelp, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
// Global flags may appear anywhere on the command line.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	valueFlags := map[string]*string{
		"--config":   &parsedArgs.ConfigPath,
		"--url":      &parsedArgs.URL,
		"--token":    &parsedArgs.Token,
		"--doc-type": &parsedArgs.DocType,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "--no-history":
			parsedArgs.NoHistory = true
			continue
		case "--no-cache":
			parsedArgs.NoCache = true
			continue
		case "--json":
			parsedArgs.JSON = true
			continue
		case "-q", "--quiet":
			parsedArgs.Quiet = true
			continue
		case "-v", "--verbose":
			parsedArgs.Verbose = true
			continue
		}

		if dst, ok := valueFlags[arg]; ok {
			if i+1 < len(args) {
				i++
				*dst = args[i]
			}
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			if dst, known := valueFlags[name]; known {
				*dst = value
				continue
			}
		}
		remaining = append(remaining, arg)
	}

	return remaining, parsedArgs
}

// parseAskArgs parses ask command specific arguments. Everything that is
// not a flag is part of the question.
func parseAskArgs(args *Args, remaining []string) {
	var query []string

	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		switch arg {
		case "-f", "--file":
			if i+1 < len(remaining) {
				i++
				args.Files = append(args.Files, remaining[i])
			}
		case "-c", "--conversation":
			if i+1 < len(remaining) {
				i++
				args.Conversation = remaining[i]
			}
		case "--":
			query = append(query, remaining[i+1:]...)
			i = len(remaining)
		default:
			switch {
			case strings.HasPrefix(arg, "--file="):
				args.Files = append(args.Files, strings.TrimPrefix(arg, "--file="))
			case strings.HasPrefix(arg, "--conversation="):
				args.Conversation = strings.TrimPrefix(arg, "--conversation=")
			case arg == "-" || !strings.HasPrefix(arg, "-"):
				query = append(query, arg)
			}
		}
	}

	args.Query = strings.Join(query, " ")
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) == 0 {
		args.Subcommand = "show"
		return
	}
	args.Subcommand = strings.ToLower(remaining[0])
	if len(remaining) > 1 {
		args.ConfigKey = remaining[1]
	}
	if len(remaining) > 2 {
		args.ConfigVal = strings.Join(remaining[2:], " ")
	}
}
