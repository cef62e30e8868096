package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Long:  "Check the health status of the rpcmesh router",
		RunE:  runHealth,
	}
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	health, err := client.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	out := cmd.OutOrStdout()
	if health.Healthy {
		fmt.Fprintf(out, "✅ Router is healthy\n")
	} else {
		fmt.Fprintf(out, "❌ Router is not healthy\n")
	}
	fmt.Fprintf(out, "Started: %t\n", health.Started)
	fmt.Fprintf(out, "Realms: %d\n", health.Realms)
	fmt.Fprintf(out, "Sessions: %d (%d backlogged)\n", health.Sessions, health.BackloggedSessions)
	fmt.Fprintf(out, "Registrations: %d\n", health.Registrations)
	fmt.Fprintf(out, "Active Calls: %d\n", health.ActiveCalls)
	if health.Message != "" {
		fmt.Fprintf(out, "Message: %s\n", health.Message)
	}
	return nil
}
