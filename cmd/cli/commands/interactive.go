package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// InteractiveCmd creates the interactive command
func InteractiveCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Start an interactive session (log in once, run multiple commands)",
		Long: `Start an interactive session where you can run multiple commands against the same session.
Logins, logouts and role changes made in other terminals are picked up while it runs,
and notifications are polled in the background.

The session will keep running until you type 'exit' or 'quit'.
Type 'help' to see available commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ctx, cancel := context.WithCancel(app.Ctx)
			defer cancel()

			if err := app.Session.Start(ctx); err != nil {
				app.Logger.Warn("Changes from other terminals will not be seen", zap.Error(err))
			}
			detach := app.Poller.FollowSession(ctx, app.Session)
			defer detach()

			fmt.Fprintln(out, "\nStarting interactive session...")
			fmt.Fprintln(out, "Type 'help' for available commands, 'exit' or 'quit' to leave")

			// Get all sibling commands (excluding interactive itself)
			rootCmd := cmd.Parent()
			commands := make(map[string]*cobra.Command)
			for _, subCmd := range rootCmd.Commands() {
				if subCmd.Name() != "interactive" && subCmd.Name() != "completion" && subCmd.Name() != "help" {
					commands[subCmd.Name()] = subCmd
				}
			}

			for {
				line, err := app.ReadLine(out, interactivePrompt(app))
				if err != nil {
					if errors.Is(err, io.EOF) {
						fmt.Fprintln(out)
						return nil
					}
					return err
				}
				if line == "" {
					continue
				}

				parts, err := parseCommandLine(line)
				if err != nil {
					errorColor.Fprintf(out, "Error parsing command: %v\n\n", err)
					continue
				}
				if len(parts) == 0 {
					continue
				}
				cmdName := parts[0]
				cmdArgs := parts[1:]

				if cmdName == "exit" || cmdName == "quit" {
					fmt.Fprintln(out, "Goodbye!")
					return nil
				}

				if cmdName == "help" {
					printInteractiveHelp(out, commands)
					continue
				}

				targetCmd, exists := commands[cmdName]
				if !exists {
					errorColor.Fprintf(out, "Unknown command: %s (type 'help' for available commands)\n\n", cmdName)
					continue
				}

				runInteractive(targetCmd, cmdArgs, out)
			}
		},
	}

	return cmd
}

func interactivePrompt(app *AppContext) string {
	snap := app.Session.Snapshot()
	if !snap.Authenticated() {
		return "> "
	}
	prompt := "> "
	if snap.ActiveRole != "" {
		prompt = fmt.Sprintf("[%s] > ", snap.ActiveRole)
	}
	if unread := app.Center.State().Unread; unread > 0 {
		prompt = okColor.Sprintf("(%d unread) ", unread) + prompt
	}
	return prompt
}

// runInteractive executes the command's RunE directly. Execute would re-run
// PersistentPreRunE and initialise the app a second time.
func runInteractive(targetCmd *cobra.Command, cmdArgs []string, out io.Writer) {
	targetCmd.Flags().VisitAll(func(flag *pflag.Flag) {
		flag.Changed = false
		if sv, ok := flag.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
			return
		}
		_ = flag.Value.Set(flag.DefValue)
	})

	if err := targetCmd.ParseFlags(cmdArgs); err != nil {
		errorColor.Fprintf(out, "Error parsing flags: %v\n\n", err)
		return
	}
	cmdArgs = targetCmd.Flags().Args()

	if targetCmd.Args != nil {
		if err := targetCmd.Args(targetCmd, cmdArgs); err != nil {
			errorColor.Fprintf(out, "Error: %v\n\n", err)
			return
		}
	}
	if err := targetCmd.ValidateFlagGroups(); err != nil {
		errorColor.Fprintf(out, "Error: %v\n\n", err)
		return
	}

	if targetCmd.RunE != nil {
		if err := targetCmd.RunE(targetCmd, cmdArgs); err != nil {
			ReportError(out, err)
			fmt.Fprintln(out)
		}
	} else if targetCmd.Run != nil {
		targetCmd.Run(targetCmd, cmdArgs)
	}
}

func printInteractiveHelp(out io.Writer, commands map[string]*cobra.Command) {
	fmt.Fprintln(out, "\nAvailable commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(out, "  %-40s %s\n", cmd.Use, cmd.Short)
	}

	fmt.Fprintln(out, "\n  help                                     Show this help message")
	fmt.Fprintln(out, "  exit, quit                               Exit the interactive session")
}

// parseCommandLine splits a command line into arguments, respecting quoted strings
// Supports both single and double quotes
func parseCommandLine(line string) ([]string, error) {
	var args []string
	var current strings.Builder
	var inQuote rune // 0 if not in quote, '"' or '\'' if in quote

	for _, r := range line {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			inQuote = r
		case unicode.IsSpace(r):
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if inQuote != 0 {
		return nil, fmt.Errorf("unclosed quote: %c", inQuote)
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}

	return args, nil
}
