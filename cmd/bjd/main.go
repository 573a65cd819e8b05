package main

import (
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cometbft/cometbft/abci/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bountyjackpot/chain/internal/app"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bjd",
		Short: "Bounty jackpot settlement node",
	}
	root.AddCommand(startCmd())
	return root
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the ABCI application server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := newLogger(viper.GetString("log-level"))

			home := viper.GetString("home")
			addr := viper.GetString("addr")
			transport := viper.GetString("transport")
			metricsAddr := viper.GetString("metrics-addr")

			a, err := app.New(home)
			if err != nil {
				log.Error().Err(err).Str("home", home).Msg("init app")
				return err
			}
			log.Info().Str("home", home).Msg("state loaded")

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Error().Err(err).Msg("metrics server")
					}
				}()
				log.Info().Str("addr", metricsAddr).Msg("metrics listening")
			}

			srv, err := server.NewServer(addr, transport, a)
			if err != nil {
				log.Error().Err(err).Msg("create abci server")
				return err
			}
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("start abci server")
				return err
			}
			defer func() { _ = srv.Stop() }()
			log.Info().Str("addr", addr).Str("transport", transport).Msg("abci listening")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			return nil
		},
	}

	cmd.Flags().String("home", ".bjd", "app home directory (state is stored under <home>/app)")
	cmd.Flags().String("addr", "tcp://127.0.0.1:26658", "ABCI listen address")
	cmd.Flags().String("transport", "socket", "ABCI transport (socket|grpc)")
	cmd.Flags().String("metrics-addr", "", "Prometheus listen address (empty disables)")
	cmd.Flags().String("log-level", "info", "log level (trace|debug|info|warn|error)")

	viper.SetEnvPrefix("BJD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(cmd.Flags())

	return cmd
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
