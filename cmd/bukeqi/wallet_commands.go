package main

import (
	"fmt"
	"io"

	"github.com/brojonat/bukeqi/service/wallet"
	"github.com/urfave/cli/v2"
)

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Manage the burner identity",
		Subcommands: []*cli.Command{
			{
				Name:  "connect",
				Usage: "Create or load the burner identity",
				Action: func(c *cli.Context) error {
					id, err := newClient(c).ConnectWallet(c.Context)
					if err != nil {
						return fmt.Errorf("failed to connect identity: %w", err)
					}
					return printIdentity(c, id)
				},
			},
			{
				Name:    "show",
				Aliases: []string{"balance"},
				Usage:   "Show the current identity",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "refresh",
						Usage: "Re-read the balance first",
					},
				},
				Action: func(c *cli.Context) error {
					cl := newClient(c)
					var (
						id  *wallet.Identity
						err error
					)
					if c.Bool("refresh") {
						id, err = cl.RefreshWallet(c.Context)
					} else {
						id, err = cl.Wallet(c.Context)
					}
					if err != nil {
						return fmt.Errorf("failed to read identity: %w", err)
					}
					return printIdentity(c, id)
				},
			},
			{
				Name:  "burn",
				Usage: "Discard the burner identity",
				Action: func(c *cli.Context) error {
					if err := newClient(c).BurnWallet(c.Context); err != nil {
						return fmt.Errorf("failed to burn identity: %w", err)
					}
					fmt.Fprintln(c.App.Writer, "✓ Identity burned")
					return nil
				},
			},
		},
	}
}

func printIdentity(c *cli.Context, id *wallet.Identity) error {
	if c.Bool("json") {
		return printJSON(c, id)
	}
	writeIdentity(c.App.Writer, id)
	return nil
}

func writeIdentity(w io.Writer, id *wallet.Identity) {
	if !id.Connected {
		fmt.Fprintln(w, "No identity connected")
		return
	}
	fmt.Fprintf(w, "Address: %s\n", id.Address)
	fmt.Fprintf(w, "Balance: %s\n", id.Balance)
}
