package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blip-io/blip/pkg/blip"
	"github.com/blip-io/blip/pkg/wstransport"
)

func sendCmd() *cobra.Command {
	var (
		profile     string
		body        string
		properties  []string
		appProtocol string
		compress    bool
		urgent      bool
		noReply     bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send URL",
		Short: "Send one request to a BLIP endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			conn, err := wstransport.Dial(ctx, args[0], appProtocol)
			if err != nil {
				return err
			}
			engine, err := blip.NewEngine(conn, blip.WithLogger(slog.New(
				slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))))
			if err != nil {
				conn.Disconnect()
				return err
			}

			done := make(chan error, 1)
			go func() { done <- engine.Run(ctx) }()

			req := engine.NewRequest()
			req.SetProfile(profile)
			req.SetBody([]byte(body))
			req.SetCompressed(compress)
			req.SetUrgent(urgent)
			req.SetNoReply(noReply)
			for _, prop := range properties {
				key, value, ok := strings.Cut(prop, "=")
				if !ok {
					return fmt.Errorf("property %q is not key=value", prop)
				}
				req.SetProperty(key, value)
			}

			resp, err := req.Send()
			if err != nil {
				return err
			}
			if resp == nil {
				engine.CloseWhenIdle()
				return <-done
			}

			select {
			case <-resp.Done():
			case <-ctx.Done():
				engine.Close()
				return ctx.Err()
			}
			if remote := resp.Error(); remote != nil {
				return remote
			}
			for _, p := range resp.Properties() {
				fmt.Fprintf(os.Stderr, "%s: %s\n", p[0], p[1])
			}
			fmt.Println(string(resp.Body()))

			engine.CloseWhenIdle()
			return <-done
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "Echo", "request profile")
	cmd.Flags().StringVarP(&body, "body", "b", "", "request body")
	cmd.Flags().StringArrayVar(&properties, "property", nil, "extra key=value property (repeatable)")
	cmd.Flags().StringVar(&appProtocol, "subprotocol", "", "application subprotocol appended to BLIP_3")
	cmd.Flags().BoolVar(&compress, "compress", false, "compress the request body")
	cmd.Flags().BoolVar(&urgent, "urgent", false, "mark the request urgent")
	cmd.Flags().BoolVar(&noReply, "no-reply", false, "do not wait for a response")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	return cmd
}
