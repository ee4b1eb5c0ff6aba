package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"github.com/astromechza/yote/pkg/api"
	"github.com/astromechza/yote/pkg/config"
	"github.com/astromechza/yote/pkg/docstore"
	"github.com/astromechza/yote/pkg/notify"
	"github.com/astromechza/yote/pkg/viz"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the http server until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if err := requireSecret(cfg); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", "localhost:8080", "the address to listen on")
	cmd.Flags().Duration("flush-interval", 5*time.Second, "how often changed collections are written to sqlite")
	cmd.Flags().String("dump-dir", "", "write each collection and its change graph here on shutdown")
	return cmd
}

// openStore opens the configured backend. The automerge store is also returned on its own so
// that the caller can run its flush loop and dump it.
func openStore(ctx context.Context, cfg config.Config) (docstore.Store, *docstore.AutomergeStore, error) {
	if cfg.Server.Backend == config.BackendMongo {
		slog.Info("Connecting to mongo", "database", cfg.Mongo.Database)
		s, err := docstore.OpenMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		return s, nil, err
	}
	slog.Info("Opening database", "path", cfg.Database.Path)
	db, err := docstore.OpenDatabase(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	s, err := docstore.OpenAutomergeStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return s, s, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	store, am, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close store", "err", err)
		}
	}()

	clock := clockwork.NewRealClock()
	hub := notify.NewHub()
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewServer(store, hub, api.NewAuthenticator(cfg.Auth.Secret, clock), clock),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Listening", "addr", cfg.Server.Addr, "backend", cfg.Server.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return zerr.Wrap(err, "server listen failed")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if am != nil {
		g.Go(func() error {
			return am.Run(ctx, cfg.Database.FlushInterval)
		})
	}

	err = g.Wait()
	if am != nil && cfg.Server.DumpDir != "" {
		dumpCollections(am, cfg.Server.DumpDir)
	}
	return err
}

func dumpCollections(am *docstore.AutomergeStore, dir string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("failed to create dump dir", "dir", dir, "err", err)
		return
	}
	for _, name := range am.Collections() {
		doc, err := am.Fork(name)
		if err != nil || doc == nil {
			slog.Error("failed to fork", "collection", name, "err", err)
			continue
		}
		docPath, svgPath, err := viz.Dump(dir, name, doc, "docs")
		if err != nil {
			slog.Error("failed to dump", "collection", name, "err", err)
			continue
		}
		slog.Info("dumped", "collection", name, "doc", docPath, "graph", svgPath)
	}
}
