package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/channelmesh"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "channelmesh",
		Short:         "Run a conversational agent with background branches and workers",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), channelmesh.Version)
			return err
		},
	}
}
