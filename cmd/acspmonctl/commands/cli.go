package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// cliResult mirrors the API's per-AP CLI outcome.
type cliResult struct {
	AP     string   `json:"ap"`
	OK     bool     `json:"ok"`
	Output []string `json:"output,omitempty"`
	Error  string   `json:"error,omitempty"`
}

func cliCmd() *cobra.Command {
	var (
		targets []string
		delay   string
	)

	cmd := &cobra.Command{
		Use:   "cli <command...>",
		Short: "Forward a CLI command to APs",
		Long: "Forwards one CLI line to every AP (or to --target APs) over their live\n" +
			"shell sessions. Multiple commands may be joined with ';'. --delay paces\n" +
			"the fleet so channel selection is not disturbed everywhere at once.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			line := strings.Join(args, " ")

			var results []cliResult
			for _, cli := range strings.Split(line, ";") {
				cli = strings.TrimSpace(cli)
				if cli == "" {
					continue
				}
				body := map[string]any{"command": cli}
				if len(targets) > 0 {
					body["targets"] = targets
				}
				if delay != "" {
					body["delay"] = delay
				}

				var res []cliResult
				if err := client.send("POST", "/v1/cli", body, &res); err != nil {
					return err
				}
				results = append(results, res...)
			}

			if outputFormat != "table" {
				return printStructured(results)
			}

			for _, r := range results {
				status := "ok"
				if !r.OK {
					status = "FAILED: " + r.Error
				}
				fmt.Printf("%s: %s\n", r.AP, status)
				for _, l := range r.Output {
					fmt.Printf("  %s\n", l)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&targets, "target", nil,
		"restrict to these AP addresses (default: whole fleet)")
	cmd.Flags().StringVar(&delay, "delay", "",
		"pause between APs, e.g. \"2s\"")
	return cmd
}
