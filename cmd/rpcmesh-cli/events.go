package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/httpclient"
)

func newEventsCommand() *cobra.Command {
	var (
		topic  string
		offset int64
		limit  int
		follow bool
		pretty bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read the meta event journal (admin)",
		Long: `Read journaled meta events of one topic in --realm, e.g.
wamp.session.on_join or wamp.registration.on_register. With --follow the
command keeps streaming new events until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if follow {
				start := offset
				if !cmd.Flags().Changed("offset") {
					start = -1
				}
				return runFollowEvents(cmd, topic, start, pretty)
			}
			return runReadEvents(cmd, topic, offset, limit, pretty)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Meta event topic (required)")
	cmd.Flags().Int64Var(&offset, "offset", 0, "Offset to start reading from")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of events (server default if 0)")
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream new events; starts at the end unless --offset is given")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty print event arguments")
	cmd.MarkFlagRequired("topic")

	return cmd
}

func runReadEvents(cmd *cobra.Command, topic string, offset int64, limit int, pretty bool) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	response, err := client.ReadMetaEvents(ctx, realm, topic, offset, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📖 %d event(s) from %s in %s (offset %d, end %d)\n\n",
		response.Count, response.Topic, response.Realm, response.StartOffset, response.EndOffset)
	for _, event := range response.Events {
		printEvent(out, event, pretty)
	}
	return nil
}

func runFollowEvents(cmd *cobra.Command, topic string, offset int64, pretty bool) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream, err := client.StreamMetaEvents(ctx, httpclient.StreamConfig{
		Realm:  realm,
		Topic:  topic,
		Offset: offset,
	})
	if err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}
	defer stream.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🌊 Following %s in %s. Press Ctrl+C to stop.\n", topic, realm)

	count := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "\n✅ Stream stopped. Received %d events.\n", count)
			return nil
		case event, ok := <-stream.Events():
			if !ok {
				fmt.Fprintf(out, "\n🔌 Stream closed. Received %d events.\n", count)
				return nil
			}
			count++
			printEvent(out, event, pretty)
		case err, ok := <-stream.Errors():
			if ok {
				fmt.Fprintf(out, "❌ Stream error: %v\n", err)
			}
		}
	}
}

func printEvent(out io.Writer, event *eventlog.Event, pretty bool) {
	fmt.Fprintf(out, "📨 #%d %s\n", event.Offset, event.Topic)
	fmt.Fprintf(out, "   Session: %d\n", event.Session)
	fmt.Fprintf(out, "   Time: %s\n", event.Timestamp.Format("2006-01-02 15:04:05.000"))

	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(event.Args, "   ", "  ")
	} else {
		data, err = json.Marshal(event.Args)
	}
	if err != nil {
		fmt.Fprintf(out, "   Args: %v\n\n", event.Args)
		return
	}
	fmt.Fprintf(out, "   Args: %s\n\n", data)
}
