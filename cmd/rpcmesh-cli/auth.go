package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Log in and print a token",
		Long: `Log in to the router with --authid. The printed JWT authorizes websocket and
gRPC sessions; the authid "admin" also unlocks the admin commands.`,
		RunE: runAuth,
	}
}

func runAuth(cmd *cobra.Command, args []string) error {
	if authID == "" {
		return fmt.Errorf("--authid is required to log in")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Authenticating with server %s as %s...\n", serverURL, authID)

	if err := client.Authenticate(ctx); err != nil {
		return err
	}

	token := client.GetToken()
	fmt.Fprintf(out, "✅ Authentication successful!\n")
	fmt.Fprintf(out, "Token: %s\n", token)
	fmt.Fprintf(out, "\nSave the token for later commands:\n")
	fmt.Fprintf(out, "  export RPCMESH_TOKEN=\"%s\"\n", token)
	fmt.Fprintf(out, "  rpcmesh-cli call com.example.add 2 3\n")
	return nil
}
