package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRealmsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "realms",
		Short: "List realms (admin)",
		Long:  "List every realm with its session, registration and active call counts",
		RunE:  runRealms,
	}
}

func newRegistrationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "registrations",
		Short: "List the registrations of a realm (admin)",
		Long:  "List the live procedure registrations of --realm, oldest first",
		RunE:  runRegistrations,
	}
}

func runRealms(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	response, err := client.ListRealms(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(response.Realms) == 0 {
		fmt.Fprintln(out, "No realms")
		return nil
	}
	fmt.Fprintf(out, "Found %d realm(s):\n\n", len(response.Realms))
	for i, r := range response.Realms {
		fmt.Fprintf(out, "%d. %s\n", i+1, r.Name)
		fmt.Fprintf(out, "   Sessions: %d\n", r.Sessions)
		fmt.Fprintf(out, "   Registrations: %d\n", r.Registrations)
		fmt.Fprintf(out, "   Active Calls: %d\n", r.ActiveCalls)
	}
	return nil
}

func runRegistrations(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	response, err := client.ListRegistrations(ctx, realm)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(response.Registrations) == 0 {
		fmt.Fprintf(out, "No registrations in %s\n", response.Realm)
		return nil
	}
	fmt.Fprintf(out, "Found %d registration(s) in %s:\n\n", len(response.Registrations), response.Realm)
	for i, reg := range response.Registrations {
		fmt.Fprintf(out, "%d. %s\n", i+1, reg.Procedure)
		fmt.Fprintf(out, "   ID: %d\n", reg.ID)
		fmt.Fprintf(out, "   Match: %s  Invoke: %s\n", reg.Match, reg.Invoke)
		fmt.Fprintf(out, "   Session: %d\n", reg.Registrant)
		fmt.Fprintf(out, "   Created: %s\n", reg.Created.Format("2006-01-02 15:04:05"))
	}
	return nil
}
