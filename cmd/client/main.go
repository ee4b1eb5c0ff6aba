package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"

	"github.com/astromechza/yote/pkg/cache"
	"github.com/astromechza/yote/pkg/client"
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

// session is what every subcommand works against: the api client and a cache in front of it.
type session struct {
	client *client.Client
	store  *cache.Store
	clock  clockwork.Clock
}

func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:           "yote",
		Short:         "Work with yote tasks and notes from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./yote.yaml or $YOTE_CONFIG)")
	root.PersistentFlags().String("base-url", "http://localhost:8080", "root url of the api")
	root.PersistentFlags().String("token", "", "bearer token, see yote-server token")
	root.PersistentFlags().Duration("timeout", 0, "per request timeout (default client.timeout)")

	open := func(cmd *cobra.Command) (*session, error) {
		cfg, err := config.Load(configFile, cmd.Flags())
		if err != nil {
			return nil, err
		}
		opts := []client.Option{client.WithTimeout(cfg.Client.Timeout)}
		if cfg.Client.Token != "" {
			opts = append(opts, client.WithToken(cfg.Client.Token))
		}
		c, err := client.New(cfg.Client.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		clock := clockwork.NewRealClock()
		return &session{client: c, store: cache.New(c, clock), clock: clock}, nil
	}

	root.AddCommand(newTasksCmd(open), newNotesCmd(open), newWatchCmd(open))
	return root
}

type opener func(cmd *cobra.Command) (*session, error)

// parsePath turns --by and --in flags into a list key path:
//
//	--by _flow=f1 --by status=open  ->  _flow/f1/status/open
//	--in _id=a,b                    ->  _id/[a,b]
func parsePath(by []string, in string) (cache.KeyPath, error) {
	if in != "" {
		if len(by) > 0 {
			return nil, zerr.New("--by and --in cannot be combined")
		}
		key, values, found := strings.Cut(in, "=")
		if !found || key == "" {
			return nil, zerr.With(zerr.New("expected key=v1,v2"), "in", in)
		}
		return cache.KeyPath{cache.Val(key), cache.Set(strings.Split(values, ",")...)}, nil
	}
	var parts []string
	for _, pair := range by {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, zerr.With(zerr.New("expected key=value"), "by", pair)
		}
		parts = append(parts, key, value)
	}
	return cache.Path(parts...), nil
}
