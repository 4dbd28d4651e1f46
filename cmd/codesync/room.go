package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pkt.systems/codesync"
)

func addSessionFlags(cmd *cobra.Command, opts *sessionOptions) {
	cmd.Flags().StringVarP(&opts.displayName, "name", "n", "", "display name (persisted)")
	cmd.Flags().StringVar(&opts.transport, "transport", "", "push transport: sse or websocket (overrides config)")
}

func newCreateCmd(flags *rootFlags) *cobra.Command {
	var opts sessionOptions
	var language string
	cmd := &cobra.Command{
		Use:   "create <room-name>",
		Short: "Create a room and start a session in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), flags, opts, cmd.InOrStdin(), cmd.OutOrStdout(),
				func(ctx context.Context, client *codesync.Client, out io.Writer) error {
					resp, err := client.CreateRoom(ctx, args[0], language)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(out, "room %s created; share the id %s (type /help for commands)\n", resp.RoomName, resp.RoomID)
					return err
				})
		},
	}
	addSessionFlags(cmd, &opts)
	cmd.Flags().StringVarP(&language, "lang", "l", "", "room language (default javascript)")
	return cmd
}

func newJoinCmd(flags *rootFlags) *cobra.Command {
	var opts sessionOptions
	cmd := &cobra.Command{
		Use:   "join <room-id>",
		Short: "Join a room and start a session in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), flags, opts, cmd.InOrStdin(), cmd.OutOrStdout(),
				func(ctx context.Context, client *codesync.Client, out io.Writer) error {
					resp, err := client.JoinRoom(ctx, args[0])
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(out, "joined %s with %d users (type /help for commands)\n", resp.RoomName, len(resp.Users))
					return err
				})
		},
	}
	addSessionFlags(cmd, &opts)
	return cmd
}
