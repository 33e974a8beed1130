// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
)

// Run executes a non-TUI command, reports any error and returns the process
// exit code.
func Run(cmd Command, args Args) int {
	var err error
	switch cmd {
	case CmdChat:
		err = HandleChatCommand(args)
	case CmdAsk:
		err = HandleAskCommand(args)
	case CmdUpload:
		err = HandleUploadCommand(args)
	case CmdExport:
		err = HandleExportCommand(args)
	case CmdConfig:
		err = HandleConfigCommand(args)
	case CmdVersion:
		err = PrintVersion(args.JSON)
	case CmdTUI:
		err = fmt.Errorf("the interactive interface is started by the ragchat binary")
	default:
		if args.Unknown != "" {
			err = &ValidationError{
				Field:   "command",
				Value:   args.Unknown,
				Reason:  "unknown command",
				Example: "ragchat help",
			}
			if !args.JSON {
				PrintUsage()
				fmt.Fprintln(os.Stderr)
			}
			break
		}
		PrintUsage()
	}

	if err == nil {
		return ExitSuccess
	}
	if !isReported(err) {
		DisplayError(cmd.String(), err, args.JSON)
	}
	return GetExitCode(err)
}
