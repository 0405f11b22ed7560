package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// commandResult is the shape rendered by printResult, for both the
// table and JSON output formats.
type commandResult struct {
	Command string `json:"command"`
	Text    string `json:"text"`
}

// printResult renders one command's result in the configured format.
func printResult(command, text string) error {
	switch outputFormat {
	case formatJSON:
		return printResultJSON(command, text)
	case formatTable:
		return printResultTable(command, text)
	default:
		return fmt.Errorf("%w: %q", errUnsupportedFormat, outputFormat)
	}
}

func printResultTable(command, text string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "command:\t%s\n", command)
	fmt.Fprintf(w, "result:\t%s\n", text)
	return w.Flush()
}

func printResultJSON(command, text string) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(commandResult{Command: command, Text: text})
}

// printMultiResults renders the per-server outcomes of a multi fan-out.
func printMultiResults(command string, results []multiResult) error {
	switch outputFormat {
	case formatJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Command string        `json:"command"`
			Results []multiResult `json:"results"`
		}{Command: command, Results: results})
	case formatTable:
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "server\tresult\n")
		for _, r := range results {
			if r.Err != "" {
				fmt.Fprintf(w, "%s\terror: %s\n", r.Server, r.Err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\n", r.Server, r.Text)
		}
		return w.Flush()
	default:
		return fmt.Errorf("%w: %q", errUnsupportedFormat, outputFormat)
	}
}
