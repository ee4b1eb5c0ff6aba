package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/astromechza/yote/pkg/cache"
	"github.com/astromechza/yote/pkg/model"
)

func printNotes(w io.Writer, notes []model.Note) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTASK\tBY\tCONTENT")
	for _, n := range notes {
		by := n.User
		if n.Commentor != nil {
			by = n.Commentor.FullName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, n.Task, by, n.Content)
	}
	return tw.Flush()
}

func newNotesCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List and add notes on tasks",
	}

	var listTask string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the notes of a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			res, err := s.store.Notes.FetchListIfNeeded(cmd.Context(), cache.Path("_task", listTask))
			if err != nil {
				return err
			}
			return printNotes(cmd.OutOrStdout(), res.Items)
		},
	}
	list.Flags().StringVar(&listTask, "task", "", "task id")
	_ = list.MarkFlagRequired("task")

	var task, content string
	create := &cobra.Command{
		Use:   "create",
		Short: "Add a note to a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			res, err := s.store.CreateNote(cmd.Context(), model.Note{Task: task, Content: content})
			if err != nil {
				return err
			}
			return printNotes(cmd.OutOrStdout(), []model.Note{res.Item})
		},
	}
	create.Flags().StringVar(&task, "task", "", "task id")
	create.Flags().StringVar(&content, "content", "", "note text")
	_ = create.MarkFlagRequired("task")
	_ = create.MarkFlagRequired("content")

	cmd.AddCommand(list, create)
	return cmd
}
