package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// shellCommands lists the available commands for the interactive shell help output.
var shellCommands = []struct {
	name string
	desc string
}{
	{"aps [ip]", "List the fleet or show one AP"},
	{"render", "Dump the draw-ordered render circles"},
	{"cli <command>", "Forward a CLI line to APs"},
	{"position <ip> <x> <y>", "Manually place an AP"},
	{"tune get / set k=v", "Inspect or adjust tunables"},
	{"quit-daemon", "Ask the daemon to shut down"},
	{"version", "Print build information"},
	{"help", "Show this help message"},
	{"exit / quit", "Leave the interactive shell"},
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive acspmonctl shell",
		Long:  "Launches a simple REPL that accepts acspmonctl subcommands. Type 'help', 'exit', or 'quit'.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			printShellBanner()
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("acspmonctl> ")

			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())

				switch {
				case line == "exit" || line == "quit":
					return nil
				case line == "help" || line == "?":
					printShellHelp()
				case line == "quit-daemon":
					runShellArgs([]string{"quit"})
				case line != "":
					runShellArgs(strings.Fields(line))
				}

				fmt.Print("acspmonctl> ")
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}

			return nil
		},
	}
}

// runShellArgs executes one REPL line through the root command.
func runShellArgs(args []string) {
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
}

// printShellBanner prints a welcome message when the shell starts.
func printShellBanner() {
	fmt.Println("acspmon interactive shell. Type 'help' for available commands, 'exit' to quit.")
	fmt.Println()
}

// printShellHelp prints a formatted list of available shell commands.
func printShellHelp() {
	fmt.Println("Available commands:")
	fmt.Println()

	for _, cmd := range shellCommands {
		fmt.Printf("  %-25s %s\n", cmd.name, cmd.desc)
	}
	fmt.Println()
}
