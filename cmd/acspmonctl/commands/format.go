package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// errUnknownFormat indicates an unsupported --format value.
var errUnknownFormat = errors.New("unknown output format")

// printStructured emits v as JSON or YAML per the --format flag. The
// caller handles the table format itself and calls this for the rest.
func printStructured(v any) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer func() { _ = enc.Close() }()
		return enc.Encode(v)
	default:
		return fmt.Errorf("%w: %s", errUnknownFormat, outputFormat)
	}
}

// newTable returns a tab-aligned writer for table output. The caller must
// Flush it.
func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}
