package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-db",
		Short: "Delete the engine's persisted results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := instance.Engine().ClearDB(cmd.Context()); err != nil {
				return fmt.Errorf("clear engine database: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "engine database cleared")
			return err
		},
	}
}
