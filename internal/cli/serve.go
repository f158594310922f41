package cli

import (
	"context"
	"net"
	"time"

	"github.com/spf13/cobra"

	"screen-recorder/internal/control"
)

const (
	defaultServeAddr    = "127.0.0.1:7420"
	serveShutdownWindow = 30 * time.Second
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP control API",
		Long:  "Expose recorder state and controls over HTTP, with websocket event push and Prometheus metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := NewFormatter(cmd.OutOrStdout())
			handler := control.NewHandler(deps.Engine.Controller(), deps.Log)
			router := control.NewRouter(handler, deps.Metrics, deps.Log)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), serveShutdownWindow)
				defer cancel()
				if err := deps.Engine.Shutdown(ctx); err != nil {
					f.Error(err.Error())
				}
			}()
			return control.Serve(cmd.Context(), addr, router, deps.Log, func(a net.Addr) {
				f.Listening(a.String())
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultServeAddr, "Listen address")
	return cmd
}
