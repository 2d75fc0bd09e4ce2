package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./config.yaml"

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "mangabot",
		Short:         "Telegram reminders for manga releases",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", defaultConfigPath, "Configuration file path (.json, .yaml or .toml)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newNotifyCommand(ctx))
	rootCmd.AddCommand(newItemsCommand(ctx))
	return rootCmd
}
