package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/brojonat/bukeqi/service/temporal"
	"github.com/urfave/cli/v2"
)

func ritualCommands() *cli.Command {
	return &cli.Command{
		Name:  "ritual",
		Usage: "Closing ritual commands",
		Subcommands: []*cli.Command{
			ritualRunCommand(),
			ritualScheduleCommand(),
			ritualUnscheduleCommand(),
			ritualTriggerCommand(),
		},
	}
}

func ritualRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the closing ritual now",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			cl := newClient(c)

			entries, err := cl.Ledger(c.Context)
			if err != nil {
				return fmt.Errorf("failed to read ledger: %w", err)
			}
			if len(entries) == 0 {
				return fmt.Errorf("the ledger is empty, there is no one to judge")
			}

			if !c.Bool("yes") && !confirmRitual(c.App.Reader, c.App.ErrWriter, len(entries)) {
				fmt.Fprintln(c.App.ErrWriter, "Ritual cancelled")
				return nil
			}

			result, err := cl.RunRitual(c.Context, true)
			if err != nil {
				return fmt.Errorf("failed to run closing ritual: %w", err)
			}

			if c.Bool("json") {
				return printJSON(c, result)
			}
			if result.ChosenID == "" {
				fmt.Fprintln(c.App.Writer, "The stars are silent. No one was chosen today.")
				if result.Prophecy != "" {
					fmt.Fprintf(c.App.Writer, "  %s\n", result.Prophecy)
				}
				return nil
			}
			fmt.Fprintln(c.App.Writer, "★ THE CHOSEN ONE FOUND")
			fmt.Fprintf(c.App.Writer, "  Request:  %s\n", result.ChosenID)
			fmt.Fprintf(c.App.Writer, "  Prophecy: %s\n", result.Prophecy)
			fmt.Fprintf(c.App.Writer, "  Reward:   %.2f\n", result.RewardAmount)
			fmt.Fprintf(c.App.Writer, "  Payout:   %s\n", result.PayoutTxHash)
			return nil
		},
	}
}

// confirmRitual asks for a yes on r. Anything else declines.
func confirmRitual(r io.Reader, w io.Writer, entries int) bool {
	fmt.Fprintf(w, "Initiate the closing ritual over %d entries? The Oracle will choose one. [y/N] ", entries)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func ritualScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "Create or update the closing-ritual schedule",
		ArgsUsage: "CRON",
		Description: `Sets the cron spec of the Temporal schedule that runs the closing ritual.

Example:
  bukeqi ritual schedule "0 0 * * *"`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: cron expression")
			}
			cronExpr := c.Args().First()
			if len(strings.Fields(cronExpr)) != 5 {
				return fmt.Errorf("cron expression must have 5 fields, got %q", cronExpr)
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.UpsertRitualSchedule(c.Context, cronExpr); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule %q set to %q\n", temporal.RitualScheduleID, cronExpr)
			return nil
		},
	}
}

func ritualUnscheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "unschedule",
		Usage: "Delete the closing-ritual schedule",
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteRitualSchedule(c.Context); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule %q deleted\n", temporal.RitualScheduleID)
			return nil
		},
	}
}

func ritualTriggerCommand() *cli.Command {
	return &cli.Command{
		Name:  "trigger",
		Usage: "Run the scheduled ritual now through Temporal",
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.TriggerRitual(c.Context); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule %q triggered\n", temporal.RitualScheduleID)
			return nil
		},
	}
}

func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	tc, err := temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}
	return tc, nil
}
