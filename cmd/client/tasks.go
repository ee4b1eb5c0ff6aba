package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/astromechza/yote/pkg/model"
)

func printTasks(w io.Writer, tasks []model.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCOMPLETE\tUPDATED")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", t.ID, t.Name, t.Status, t.Complete, t.Updated.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func newTasksCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and change tasks",
	}

	var by []string
	var in string
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally by reference",
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
			res, err := s.store.Tasks.FetchListIfNeeded(cmd.Context(), path)
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), res.Items)
		},
	}
	list.Flags().StringArrayVar(&by, "by", nil, "key=value reference, repeatable")
	list.Flags().StringVar(&in, "in", "", "key=v1,v2 membership query")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			res, err := s.store.Tasks.FetchSingleIfNeeded(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), []model.Task{res.Item})
		},
	}

	var name, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			task, err := s.store.Tasks.FetchDefault(cmd.Context())
			if err != nil {
				return err
			}
			task.Name = name
			task.Description = description
			res, err := s.store.CreateTask(cmd.Context(), task)
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), []model.Task{res.Item})
		},
	}
	create.Flags().StringVar(&name, "name", "", "task name")
	create.Flags().StringVar(&description, "description", "", "task description")
	_ = create.MarkFlagRequired("name")

	var undo bool
	complete := &cobra.Command{
		Use:   "complete ID",
		Short: "Mark a task complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			res, err := s.store.CompleteTask(cmd.Context(), args[0], !undo)
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), []model.Task{res.Item})
		},
	}
	complete.Flags().BoolVar(&undo, "undo", false, "mark the task incomplete instead")

	status := &cobra.Command{
		Use:   "status ID STATUS",
		Short: "Set the status of a task, e.g. open, active or resolved",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			res, err := s.store.SetTaskStatus(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), []model.Task{res.Item})
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a task (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			return s.store.Tasks.SendDelete(cmd.Context(), args[0])
		},
	}

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the task fields (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			fields, err := s.store.Tasks.FetchSchema(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tREF\tDEFAULT")
			for _, f := range fields {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", f.Name, f.Type, f.Ref, f.Default)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(list, get, create, complete, status, del, schema)
	return cmd
}
