package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Inspect and maintain local tags",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every known tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), optionsFrom(cmd).cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			tags, err := st.GetTags(cmd.Context())
			if err != nil {
				return err
			}
			for _, tag := range tags {
				fmt.Fprintln(cmd.OutOrStdout(), tag.Name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete tags no topic uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), optionsFrom(cmd).cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.DeleteUnusedTags(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d unused tags\n", n)
			return nil
		},
	})

	return cmd
}
