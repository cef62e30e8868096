package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

func newCallCommand() *cobra.Command {
	var (
		kwargsJSON string
		disclose   bool
	)

	cmd := &cobra.Command{
		Use:   "call <procedure> [args...]",
		Short: "Call a procedure",
		Long: `Join --realm, call a procedure and print its result as JSON.
Each argument is parsed as JSON when possible and sent as a string otherwise.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, wamp.URI(args[0]), args[1:], kwargsJSON, disclose)
		},
	}

	cmd.Flags().StringVar(&kwargsJSON, "kwargs", "", "Keyword arguments as a JSON object")
	cmd.Flags().BoolVar(&disclose, "disclose", false, "Disclose this session to the callee")

	return cmd
}

func runCall(cmd *cobra.Command, procedure wamp.URI, rawArgs []string, kwargsJSON string, disclose bool) error {
	if err := procedure.ValidateProcedure(wamp.MatchStrict); err != nil {
		return fmt.Errorf("invalid procedure: %w", err)
	}
	kwargs, err := parseKwargs(kwargsJSON)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	session, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	options := wamp.Dict{}
	if disclose {
		options["disclose_me"] = true
	}
	result, err := session.CallWithOptions(ctx, procedure, options, parseArgs(rawArgs), kwargs)
	if err != nil {
		return fmt.Errorf("call %s failed: %w", procedure, err)
	}

	data, err := json.Marshal(map[string]any{"args": result.Args, "kwargs": result.Kwargs})
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
