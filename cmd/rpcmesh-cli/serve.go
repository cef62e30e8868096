package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	rpcclient "github.com/rmacdonaldsmith/rpcmesh/pkg/client"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

func newServeCommand() *cobra.Command {
	var match, invoke string

	cmd := &cobra.Command{
		Use:   "serve <procedure>",
		Short: "Register an echo procedure",
		Long: `Join --realm and register a procedure that returns its arguments unchanged.
Each invocation is printed. Runs until interrupted or the router ends the session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := wamp.ParseRegisterOptions(wamp.Dict{"match": match, "invoke": invoke})
			if err != nil {
				return err
			}
			return runServe(cmd, wamp.URI(args[0]), opts)
		},
	}

	cmd.Flags().StringVar(&match, "match", "", "Matching policy: exact (default), prefix or wildcard")
	cmd.Flags().StringVar(&invoke, "invoke", "", "Invocation policy: single (default), first, last, roundrobin or random")

	return cmd
}

func runServe(cmd *cobra.Command, procedure wamp.URI, opts wamp.RegisterOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	joinCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := openSession(joinCtx)
	if err != nil {
		return err
	}
	defer session.Close()

	out := cmd.OutOrStdout()
	registration, err := session.Register(joinCtx, procedure, opts, func(_ context.Context, inv *rpcclient.Invocation) (*rpcclient.Result, error) {
		data, _ := json.Marshal(inv.Args)
		fmt.Fprintf(out, "📨 %s from session %d: %s\n", inv.Procedure, inv.Caller, data)
		return &rpcclient.Result{Args: inv.Args, Kwargs: inv.Kwargs}, nil
	})
	if err != nil {
		return fmt.Errorf("register %s failed: %w", procedure, err)
	}
	fmt.Fprintf(out, "✅ Registered %s as %d in %s (session %d). Press Ctrl+C to stop.\n",
		procedure, registration, session.Realm(), session.ID())

	select {
	case <-ctx.Done():
		fmt.Fprintln(out, "\n🛑 Stopping...")
	case <-session.Done():
		fmt.Fprintln(out, "🔌 Session ended by router")
	}
	return nil
}
