package main

import (
	"github.com/spf13/cobra"

	"birdrelay/internal/config"
)

var (
	cfgPath  string
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:   "birdrelay",
	Short: "Relay the best X/Twitter posts of a user into Telegram",
	Long: `birdrelay picks the statistically outstanding (or image-bearing) recent posts
of an X/Twitter account and relays them one by one into a Telegram chat.
Operators promote the posts they like into a second "select" chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return config.LoadDotEnv(envFiles...)
	},
	// bare invocation runs the bot
	RunE: runBot,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (json or yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, "dotenv files loaded before the config")
}
