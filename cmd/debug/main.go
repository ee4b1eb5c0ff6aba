package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/automerge/automerge-go"
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"

	"github.com/astromechza/yote/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	var record, svgPath string
	cmd := &cobra.Command{
		Use:           "yote-debug FILE",
		Short:         "Print the change graph of a collection dumped by yote-server",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return zerr.Wrap(err, "failed to read input file")
			}
			doc, err := automerge.Load(raw)
			if err != nil {
				return zerr.Wrap(err, "failed to load doc")
			}
			slog.Info("loaded doc", "contents", doc.RootMap().GoString())
			slog.Info("loaded heads", "heads", doc.Heads())

			path := []any{"docs"}
			if record != "" {
				path = append(path, record)
			}
			steps, err := viz.History(doc, path...)
			if err != nil {
				return err
			}
			for i, s := range steps {
				slog.Info("change", "i", fmt.Sprintf("%4d", i), "hash", s.Hash, "actor", s.Actor, "message", s.Message, "dep", s.Deps)
			}

			if svgPath != "" {
				var buff bytes.Buffer
				if err := viz.RenderSVG(&buff, steps); err != nil {
					return err
				}
				if err := os.WriteFile(svgPath, buff.Bytes(), 0o644); err != nil {
					return zerr.Wrap(err, "failed to write svg")
				}
				slog.Info("rendered", "svg", svgPath)
				return nil
			}
			return viz.WriteDot(cmd.OutOrStdout(), steps)
		},
	}
	cmd.Flags().StringVar(&record, "record", "", "only label nodes with this record id")
	cmd.Flags().StringVar(&svgPath, "svg", "", "render to this svg file instead of printing dot")
	return cmd.Execute()
}
