package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brojonat/bukeqi/service/oracle"
	"github.com/urfave/cli/v2"
)

func oracleCommands() *cli.Command {
	return &cli.Command{
		Name:  "oracle",
		Usage: "Talk to the oracle",
		Subcommands: []*cli.Command{
			submitCommand(),
			stateCommand(),
			dismissCommand(),
			intentsCommand(),
			watchCommand(),
		},
	}
}

func submitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Offer a tribute and wait for the oracle to speak",
		ArgsUsage: "TEXT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "intent",
				Aliases: []string{"i"},
				Usage:   "Method of help (see 'oracle intents')",
			},
			&cli.BoolFlag{
				Name:  "no-wait",
				Usage: "Return as soon as the tribute is recorded",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   2 * time.Minute,
				Usage:   "How long to wait for the oracle to speak",
			},
		},
		Action: func(c *cli.Context) error {
			text := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("request text is required")
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			cl := newClient(c)
			req, err := cl.Submit(ctx, text, c.String("intent"))
			if err != nil {
				return fmt.Errorf("failed to submit request: %w", err)
			}

			if c.Bool("no-wait") {
				if c.Bool("json") {
					return printJSON(c, req)
				}
				fmt.Fprintf(c.App.Writer, "✓ Tribute recorded (id: %s)\n", req.ID)
				return nil
			}

			// Poll until the oracle leaves Processing
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				snap, err := cl.Snapshot(ctx)
				if err != nil {
					return fmt.Errorf("failed to read oracle state: %w", err)
				}
				if snap.State != oracle.StateProcessing {
					if c.Bool("json") {
						return printJSON(c, snap.Display)
					}
					printResponse(c.App.Writer, snap.Display)
					return nil
				}
				select {
				case <-ctx.Done():
					return fmt.Errorf("timed out waiting for the oracle: %w", ctx.Err())
				case <-ticker.C:
				}
			}
		},
	}
}

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Show the oracle's current state and display",
		Action: func(c *cli.Context) error {
			snap, err := newClient(c).Snapshot(c.Context)
			if err != nil {
				return fmt.Errorf("failed to read oracle state: %w", err)
			}
			if c.Bool("json") {
				return printJSON(c, snap)
			}
			fmt.Fprintf(c.App.Writer, "State:    %s (cycle %d)\n", snap.State, snap.Cycle)
			fmt.Fprintf(c.App.Writer, "Ledger:   %d entries\n", len(snap.Ledger))
			if snap.Identity.Connected {
				fmt.Fprintf(c.App.Writer, "Identity: %s (%s)\n", snap.Identity.Address, snap.Identity.Balance)
			} else {
				fmt.Fprintf(c.App.Writer, "Identity: not connected\n")
			}
			fmt.Fprintln(c.App.Writer)
			printResponse(c.App.Writer, snap.Display)
			return nil
		},
	}
}

func dismissCommand() *cli.Command {
	return &cli.Command{
		Name:  "dismiss",
		Usage: "End the current speech early",
		Action: func(c *cli.Context) error {
			if err := newClient(c).Dismiss(c.Context); err != nil {
				return fmt.Errorf("failed to dismiss: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ The oracle falls silent")
			return nil
		},
	}
}

func intentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "intents",
		Usage: "List the suggested methods of help",
		Action: func(c *cli.Context) error {
			intents, err := newClient(c).Intents(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list intents: %w", err)
			}
			if c.Bool("json") {
				return printJSON(c, intents)
			}
			for _, intent := range intents.Intents {
				marker := " "
				if intent == intents.Default {
					marker = "*"
				}
				fmt.Fprintf(c.App.Writer, "%s %s\n", marker, intent)
			}
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream oracle snapshots via SSE",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					cancel()
				case <-ctx.Done():
				}
			}()

			url := c.String("server-url") + "/api/v1/oracle/stream"
			req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			client := &http.Client{
				Timeout: 0, // No timeout for streaming
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			jsonOutput := c.Bool("json")
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Watching the oracle... (Ctrl+C to stop)\n\n")
			}

			err = readSSE(resp.Body, func(event, data string) {
				if event != "snapshot" {
					return
				}
				if jsonOutput {
					fmt.Fprintln(c.App.Writer, data)
					return
				}
				var snap oracle.Snapshot
				if err := json.Unmarshal([]byte(data), &snap); err != nil {
					fmt.Fprintf(os.Stderr, "Error parsing snapshot: %v\n", err)
					return
				}
				fmt.Fprintf(c.App.Writer, "[%s] %s\n", snap.State, snap.Display.Speech)
			})
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("error reading SSE stream: %w", err)
			}
			return nil
		},
	}
}

// readSSE calls handle for every complete event in the stream.
func readSSE(r io.Reader, handle func(event, data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if currentEvent != "" && currentData != "" {
				handle(currentEvent, currentData)
			}
			currentEvent = ""
			currentData = ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	return scanner.Err()
}

// printResponse renders what the oracle is displaying.
func printResponse(w io.Writer, r oracle.Response) {
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(w, r.Speech)
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	if v := r.Visualization; v != nil {
		fmt.Fprintf(w, "Chart (%s): %s\n", v.Kind, v.Title)
		for _, p := range v.Data {
			fmt.Fprintf(w, "  %-20s %g\n", p.Label, p.Value)
		}
	}
	if r.SQLQuery != "" {
		fmt.Fprintf(w, "\nQuery:\n%s\n", r.SQLQuery)
	}
}
