package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/astromechza/yote/pkg/docstore"
	"github.com/astromechza/yote/pkg/model"
)

func newUserCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the users that notes are attributed to",
	}

	var first, last string
	var roles []string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user and print its id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			store, _, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			doc, err := model.Encode(model.User{
				ID:        model.NewID(),
				FirstName: first,
				LastName:  last,
				Roles:     roles,
				Created:   time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			if err := store.Insert(cmd.Context(), "users", doc); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), doc[docstore.IDKey])
			return err
		},
	}
	add.Flags().StringVar(&first, "first", "", "first name")
	add.Flags().StringVar(&last, "last", "", "last name")
	add.Flags().StringSliceVar(&roles, "role", nil, "role of the user")
	_ = add.MarkFlagRequired("first")
	_ = add.MarkFlagRequired("last")

	cmd.AddCommand(add)
	return cmd
}
