package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"

	"github.com/astromechza/yote/pkg/config"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:           "yote-server",
		Short:         "Serve the yote tasks and notes api",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./yote.yaml or $YOTE_CONFIG)")
	root.PersistentFlags().String("backend", config.BackendAutomerge, "document store: automerge or mongo")
	root.PersistentFlags().String("db", "yote.sqlite3", "sqlite database of the automerge backend")
	root.PersistentFlags().String("mongo-uri", "mongodb://localhost:27017", "uri of the mongo backend")
	root.PersistentFlags().String("mongo-database", "yote", "database of the mongo backend")
	root.PersistentFlags().String("secret", "", "secret used to sign and check bearer tokens")

	load := func(cmd *cobra.Command) (config.Config, error) {
		return config.Load(configFile, cmd.Flags())
	}
	root.AddCommand(newServeCmd(load), newTokenCmd(load), newUserCmd(load))
	return root
}

type loader func(cmd *cobra.Command) (config.Config, error)

func requireSecret(cfg config.Config) error {
	if cfg.Auth.Secret == "" {
		return zerr.New("an auth secret is required: set --secret or YOTE_AUTH_SECRET")
	}
	return nil
}
