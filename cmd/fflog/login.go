package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify credentials and show account info",
	Long: `Log in with the credentials from FFLOG_EMAIL and FFLOG_PASSWORD and
print the account name and its guilds.

Use the printed guild IDs with the --guild flag of upload and live to
file reports under a guild.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Login(ctx, cfg.Email, cfg.Password); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s\n", client.Username())
	guilds := client.Guilds()
	if len(guilds) == 0 {
		fmt.Println("No guilds; reports go to personal logs.")
		return nil
	}
	fmt.Println("Guilds:")
	for _, g := range guilds {
		fmt.Printf("  %6d  %s\n", g.ID, g.Name)
	}
	return nil
}
