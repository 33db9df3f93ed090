// Command server runs the Zalagh Plancher backend.
//
//	server serve     start the HTTP API (default)
//	server migrate   create/upgrade tables and seed admins, then exit
//
// Configuration comes from the environment, optionally loaded from .env.
//
//go:generate swag init -g main.go -d ./,../../internal/http/handlers,../../internal/domain,../../internal/services,../../internal/guide -o ../../docs
//
//	@title						Zalagh Plancher API
//	@version					2.0
//	@description				Quote requests, signed quotes, employee notifications and messaging for Zalagh Plancher.
//	@BasePath					/api
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				"Bearer <token>" as returned by a login endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	_ "github.com/zalagh/plancher-backend/docs"
	"github.com/zalagh/plancher-backend/internal/config"
	"github.com/zalagh/plancher-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile string
		cfg     config.Config
	)
	root := &cobra.Command{
		Use:           "server",
		Short:         "Zalagh Plancher backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is normal outside development.
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			sysutil.InitLogger(cfg.LogLevel, cfg.LogPretty, nil)
			log.Debug().Str("version", version).Str("db_driver", cfg.DB.Driver).Msg("config loaded")
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	serve := newServeCmd(&cfg)
	root.AddCommand(serve, newMigrateCmd(&cfg))
	// Bare "server" serves.
	root.RunE = serve.RunE
	return root
}
