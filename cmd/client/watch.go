package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/astromechza/yote/pkg/cache"
	"github.com/astromechza/yote/pkg/notify"
)

func changesURL(baseURL string) string {
	u := strings.Replace(baseURL, "http", "ws", 1)
	return u + "/api/changes"
}

func newWatchCmd(open opener) *cobra.Command {
	var by []string
	var in string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a task list on screen, refreshing it when it changes or goes stale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := parsePath(by, in)
			if err != nil {
				return err
			}
			s, err := open(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			g, ctx := errgroup.WithContext(ctx)

			changed := make(chan struct{}, 1)
			g.Go(func() error {
				header := http.Header{}
				if token := s.client.Token(); token != "" {
					header.Set("Authorization", "Bearer "+token)
				}
				return s.subscribe(ctx, header, changed)
			})
			g.Go(func() error {
				return s.refreshLoop(ctx, cmd, path, interval, changed)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringArrayVar(&by, "by", nil, "key=value reference, repeatable")
	cmd.Flags().StringVar(&in, "in", "", "key=v1,v2 membership query")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "how often to check whether the list went stale")
	return cmd
}

// subscribe feeds change events into the cache, reconnecting after a dropped connection.
func (s *session) subscribe(ctx context.Context, header http.Header, changed chan<- struct{}) error {
	for {
		err := notify.Subscribe(ctx, changesURL(s.client.BaseURL()), header, func(ev notify.Event) {
			slog.Info("change", "resource", ev.Resource, "id", ev.ID, "op", ev.Op)
			s.store.Apply(ev)
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		slog.Error("change feed dropped", "err", err)
		select {
		case <-s.clock.After(5 * time.Second):
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *session) refreshLoop(ctx context.Context, cmd *cobra.Command, path cache.KeyPath, interval time.Duration, changed <-chan struct{}) error {
	t := s.clock.NewTicker(interval)
	defer t.Stop()
	for {
		res, err := s.store.Tasks.FetchListIfNeeded(ctx, path)
		if err != nil {
			slog.Error("failed to refresh", "err", err)
		} else if res.Fetched {
			if err := printTasks(cmd.OutOrStdout(), res.Items); err != nil {
				return err
			}
		}
		select {
		case <-t.Chan():
		case <-changed:
		case <-ctx.Done():
			return nil
		}
	}
}
