package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func tuneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Inspect or adjust the daemon's runtime tunables",
	}
	cmd.AddCommand(tuneGetCmd())
	cmd.AddCommand(tuneSetCmd())
	return cmd
}

func tuneGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the current tunables",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var tun map[string]any
			if err := client.get("/v1/tunables", &tun); err != nil {
				return err
			}

			if outputFormat != "table" {
				return printStructured(tun)
			}

			tw := newTable()
			fmt.Fprintln(tw, "TUNABLE\tVALUE")
			for _, k := range sortedKeys(tun) {
				fmt.Fprintf(tw, "%s\t%v\n", k, tun[k])
			}
			return tw.Flush()
		},
	}
}

func tuneSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key>=<value> [key=value...]",
		Short: "Update tunables; changes take effect next sweep",
		Example: `  acspmonctl tune set nfloor_margin=40
  acspmonctl tune set meters_per_dot=0.2 coord_method=manual
  acspmonctl tune set freeze=true`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			patch := make(map[string]json.RawMessage, len(args))
			for _, arg := range args {
				key, val, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("malformed assignment %q, want key=value", arg)
				}
				patch[key] = encodeTunable(val)
			}

			var tun map[string]any
			if err := client.send("PUT", "/v1/tunables", patch, &tun); err != nil {
				return err
			}

			if outputFormat != "table" {
				return printStructured(tun)
			}
			fmt.Println("updated")
			return nil
		},
	}
}

// encodeTunable turns a command-line value into JSON: numbers and booleans
// pass through raw, everything else is quoted.
func encodeTunable(val string) json.RawMessage {
	if json.Valid([]byte(val)) {
		return json.RawMessage(val)
	}
	quoted, _ := json.Marshal(val)
	return quoted
}

// sortedKeys returns the map keys in lexical order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
