package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/malusev998/currency-rates/api"
	"github.com/malusev998/currency-rates/scheduler"
)

const shutdownTimeout = 5 * time.Second

func serve(rt *runtime) *cobra.Command {
	var noScheduler bool

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rates API and refresh rates in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app := rt.app
			handler := &api.Handler{
				Rates:      app.Gate,
				Updater:    app.Updater,
				Conversion: app.Conversion,
				Logger:     app.Logger.With("component", "api"),
			}

			if !noScheduler {
				sched, err := scheduler.ParseSchedule(app.Config.Schedule)
				if err != nil {
					return err
				}

				s := scheduler.New(app.Updater, sched, app.Logger.With("component", "scheduler"))
				handler.Scheduler = s

				s.Start(ctx)
				defer s.Stop()
			}

			listener, err := net.Listen("tcp", app.Config.HTTPAddr)
			if err != nil {
				return err
			}

			server := &http.Server{
				Handler:           api.NewRouter(handler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Serve(listener)
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", listener.Addr())
			app.Logger.Info("http server started", "addr", listener.Addr().String())

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}

				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}

			app.Logger.Info("http server stopped")

			return nil
		},
	}

	serveCmd.Flags().String("addr", "", "Address to listen on")
	serveCmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not refresh rates in the background")
	_ = rt.viper.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))

	return serveCmd
}
