package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/bukeqi/service/nats"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams oracle events from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to oracle events",
		ArgsUsage: "[kind]",
		Description: `Subscribe to oracle events published to NATS JetStream.

Events are published to the subject: oracle.{kind}
Kinds: submitted, spoken, judged, silent. Omit the kind to see all of them.

Example:
  bukeqi nats subscribe judged --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Durable consumer name (survives restarts); empty for ephemeral",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("at most one event kind may be given")
			}

			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelWarn,
			}))

			opts := natspkg.SubscribeOptions{
				Kind:    c.Args().First(),
				Durable: c.String("consumer-name"),
			}
			jsonOutput := c.Bool("json")

			if !jsonOutput {
				subject := natspkg.StreamSubjects
				if opts.Kind != "" {
					subject = natspkg.SubjectPrefix + "." + opts.Kind
				}
				fmt.Fprintf(os.Stderr, "📡 Subscribing to: %s (Ctrl+C to stop)\n\n", subject)
			}

			return natspkg.Subscribe(ctx, c.String("nats-url"), opts, logger, func(ev *natspkg.OracleEvent) {
				if jsonOutput {
					data, _ := json.Marshal(ev)
					fmt.Fprintln(c.App.Writer, string(data))
					return
				}
				printEvent(c, ev)
			})
		},
	}
}

func printEvent(c *cli.Context, ev *natspkg.OracleEvent) {
	w := c.App.Writer
	fmt.Fprintf(w, "[%s] %s (cycle %d)\n", ev.PublishedAt.Format(time.RFC3339), ev.Kind, ev.Cycle)
	if ev.Request != nil {
		fmt.Fprintf(w, "   Request:  %s %q\n", ev.Request.ID, ev.Request.Text)
	}
	if ev.Response != nil {
		fmt.Fprintf(w, "   Speech:   %s\n", ev.Response.Speech)
	}
	if ev.Result != nil {
		if ev.Result.ChosenID != "" {
			fmt.Fprintf(w, "   Chosen:   %s\n", ev.Result.ChosenID)
		}
		fmt.Fprintf(w, "   Prophecy: %s\n", ev.Result.Prophecy)
	}
	fmt.Fprintln(w)
}

