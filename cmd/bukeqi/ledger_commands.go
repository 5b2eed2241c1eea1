package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func ledgerCommands() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Inspect the ledger of requests",
		Subcommands: []*cli.Command{
			ledgerListCommand(),
		},
	}
}

func ledgerListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List ledger entries, newest first",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
			&cli.BoolFlag{
				Name:  "chosen",
				Usage: "Only show the chosen entry",
			},
		},
		Action: func(c *cli.Context) error {
			filters := c.StringSlice("must-jq")
			if c.Bool("chosen") {
				filters = append(filters, ".isChosen == true")
			}

			match, err := compileFilters(filters)
			if err != nil {
				return err
			}

			entries, err := newClient(c).Ledger(c.Context)
			if err != nil {
				return fmt.Errorf("failed to read ledger: %w", err)
			}

			matched, err := filterEntries(entries, match)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return printJSON(c, matched)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWHEN\tINTENT\tSUBMITTER\tCHOSEN\tTEXT")
			for _, e := range matched {
				chosen := ""
				if e.IsChosen {
					chosen = "★"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID,
					time.UnixMilli(e.Timestamp).Format(time.RFC3339),
					e.Intent,
					e.Submitter(),
					chosen,
					truncate(e.Text, 60),
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d of %d entries\n", len(matched), len(entries))
			return nil
		},
	}
}

// compileFilters compiles jq expressions into a predicate over a JSON
// document. Every filter must produce a truthy first result.
func compileFilters(filters []string) (func(interface{}) bool, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}

	return func(doc interface{}) bool {
		for _, code := range codes {
			iter := code.Run(doc)
			v, ok := iter.Next()
			if !ok {
				return false
			}
			if _, isErr := v.(error); isErr {
				return false
			}
			if !isTruthy(v) {
				return false
			}
		}
		return true
	}, nil
}

// filterEntries keeps the entries whose wire form satisfies match.
func filterEntries(entries []ledger.Request, match func(interface{}) bool) ([]ledger.Request, error) {
	out := make([]ledger.Request, 0, len(entries))
	for _, e := range entries {
		// gojq only understands plain JSON values
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal entry %s: %w", e.ID, err)
		}
		var doc interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry %s: %w", e.ID, err)
		}
		if match(doc) {
			out = append(out, e)
		}
	}
	return out, nil
}

// isTruthy checks if a jq result value is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
