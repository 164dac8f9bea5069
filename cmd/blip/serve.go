package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/blip-io/blip/pkg/blip"
	"github.com/blip-io/blip/pkg/wstransport"
)

func serveCmd() *cobra.Command {
	var (
		addr        string
		appProtocol string
		verbose     bool
		compression bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a BLIP WebSocket server",
		Long: `Serve a BLIP endpoint at /blip with an Echo profile handler and
Prometheus metrics at /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			metrics := blip.NewMetrics()
			upgrader := &wstransport.Upgrader{
				AppProtocol: appProtocol,
				ConnOptions: []wstransport.Option{wstransport.WithLogger(logger)},
			}

			r := chi.NewRouter()
			r.Use(middleware.RealIP)
			r.Use(middleware.Recoverer)
			r.Handle("/metrics", promhttp.Handler())
			r.Handle("/blip", wstransport.Handler(upgrader, func(e *blip.Engine) {
				e.Handle("Echo", echoHandler)
			},
				blip.WithLogger(logger),
				blip.WithMetrics(metrics),
				blip.WithCompression(compression),
				blip.WithTracing("blip"),
			))

			logger.Info("listening", "addr", addr)
			server := &http.Server{
				Addr:              addr,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
			}
			return server.ListenAndServe()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":4984", "listen address")
	cmd.Flags().StringVar(&appProtocol, "subprotocol", "", "application subprotocol appended to BLIP_3")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every frame")
	cmd.Flags().BoolVar(&compression, "compression", true, "compress outgoing messages that ask for it")
	return cmd
}

// echoHandler responds to an Echo request with its own body and mirrors
// its properties other than Profile.
func echoHandler(r *blip.Request) error {
	resp := r.Response()
	if resp == nil {
		return nil
	}
	for _, p := range r.Properties() {
		if p[0] == blip.ProfileProperty {
			continue
		}
		resp.SetProperty(p[0], p[1])
	}
	resp.SetBody(r.Body())
	_, err := resp.Send()
	return err
}
