package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// shellBuiltins are handled by the shell itself, not dispatched to cobra.
var shellBuiltins = []struct {
	name string
	desc string
}{
	{"help, ?", "Show this help message"},
	{"exit, quit", "Leave the interactive shell"},
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive counterctl shell",
		Long: "Launches a REPL that accepts counterctl subcommands. Arguments may be " +
			"quoted, e.g. counter add --label \"orders queue\". Flags given on one line " +
			"do not carry over to the next. Type 'help', 'exit', or 'quit'.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// runShell reads command lines from in until EOF or exit and runs each one
// through rootCmd. Flag values are restored to their state at shell start
// after every line.
func runShell(in io.Reader, out, errOut io.Writer) error {
	saved := saveFlags(rootCmd)

	fmt.Fprintln(out, "counterd interactive shell. Type 'help' for available commands, 'exit' to quit.")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, shellPrompt())

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "exit", "quit":
			return nil
		case "help", "?":
			printShellHelp(out)
		case "shell":
			fmt.Fprintln(errOut, "Error: already in the shell")
		case "":
		default:
			if err := runShellLine(line); err != nil {
				fmt.Fprintln(errOut, "Error:", err)
			}
			saved.restore()
		}

		fmt.Fprint(out, shellPrompt())
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read shell input: %w", err)
	}

	return nil
}

func runShellLine(line string) error {
	args, err := shellquote.Split(line)
	if err != nil {
		return fmt.Errorf("parse %q: %w", line, err)
	}

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// shellPrompt names the transport and address commands are sent to.
func shellPrompt() string {
	target := serverAddr
	if transportName == transportUDP {
		target = commandAddr
	}
	return fmt.Sprintf("counterctl %s %s> ", transportName, target)
}

// printShellHelp lists every runnable subcommand, then the shell builtins.
func printShellHelp(out io.Writer) {
	fmt.Fprintln(out, "Available commands:")
	fmt.Fprintln(out)

	for _, c := range shellRunnable(rootCmd) {
		use := strings.TrimSuffix(strings.TrimPrefix(c.UseLine(), rootCmd.Name()+" "), " [flags]")
		fmt.Fprintf(out, "  %-36s %s\n", use, c.Short)
	}
	for _, b := range shellBuiltins {
		fmt.Fprintf(out, "  %-36s %s\n", b.name, b.desc)
	}

	fmt.Fprintln(out)
}

// shellRunnable returns the runnable descendants of cmd that make sense
// inside the shell.
func shellRunnable(cmd *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, c := range cmd.Commands() {
		if c.Hidden || !c.IsAvailableCommand() {
			continue
		}
		switch c.Name() {
		case "shell", "help", "completion":
			continue
		}
		if c.Runnable() {
			out = append(out, c)
		}
		out = append(out, shellRunnable(c)...)
	}
	return out
}

// -------------------------------------------------------------------------
// Flag state
// -------------------------------------------------------------------------

// flagState is a snapshot of flag values across a command tree.
type flagState []savedFlag

type savedFlag struct {
	flag    *pflag.Flag
	value   string
	changed bool
}

// saveFlags records the current value of every flag in the tree under cmd.
func saveFlags(cmd *cobra.Command) flagState {
	var state flagState
	seen := make(map[*pflag.Flag]bool)

	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		visit := func(f *pflag.Flag) {
			if seen[f] {
				return
			}
			seen[f] = true
			state = append(state, savedFlag{flag: f, value: f.Value.String(), changed: f.Changed})
		}
		c.PersistentFlags().VisitAll(visit)
		c.Flags().VisitAll(visit)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(cmd)

	return state
}

// restore resets every recorded flag to its saved value.
func (s flagState) restore() {
	for _, sf := range s {
		// Values were produced by the flag's own String, so Set accepts them.
		_ = sf.flag.Value.Set(sf.value)
		sf.flag.Changed = sf.changed
	}
}
