package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/actron-nimbus/pkg/actron"
)

var _fanContinuous bool

var fanCmd = &cobra.Command{
	Use:       "fan auto|low|medium|high",
	Short:     "Set the fan speed",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"auto", "low", "medium", "high"},

	RunE: func(cmd *cobra.Command, args []string) error {
		continuous := viper.GetBool("fan.continuous")
		return sendTo(func(ctx context.Context, c *actron.Client, serial string) error {
			return c.SetFanMode(ctx, serial, args[0], continuous)
		})
	},
}

func init() {
	fanCmd.Flags().BoolVar(&_fanContinuous, "continuous", false, "run the fan continuously rather than only while heating or cooling")
	errPanic(viper.GetViper().BindPFlag("fan.continuous", fanCmd.Flags().Lookup("continuous")))

	rootCmd.AddCommand(fanCmd)
}
