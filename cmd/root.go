package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/abvaden/nps-webcam-animation-generator/cmd/advance"
	"github.com/abvaden/nps-webcam-animation-generator/cmd/retain"
	"github.com/abvaden/nps-webcam-animation-generator/cmd/schedule"
	"github.com/abvaden/nps-webcam-animation-generator/cmd/serve"
	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "webcam-animator",
		Short: "National park webcam time-lapse animation generator",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		serve.Command(settings),
		schedule.Command(settings),
		advance.Command(settings),
		retain.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		cobra.CheckErr(err)
	}
}
