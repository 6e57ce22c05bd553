package main

import (
	"github.com/spf13/cobra"

	"github.com/ha1tch/hotelmig/pkg/config"
	"github.com/ha1tch/hotelmig/pkg/server"
)

var serveFlags struct {
	host string
	port int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the operator HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if cmd.Flags().Changed("host") {
			a.cfg.Host = serveFlags.host
		}
		if cmd.Flags().Changed("port") {
			a.cfg.Port = serveFlags.port
		}

		a.logger.Info().
			Str("version", config.Version).
			Str("db_path", a.cfg.DBPath).
			Str("cache", a.cfg.CacheType).
			Msg("hotelmig operator API")

		srv := server.New(a.cfg, a.orch, a.store, a.ids, a.logger)
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.host, "host", "", "listen address (overrides HOST)")
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 0, "listen port (overrides PORT)")
}
