package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/actron-nimbus/pkg/actron"
)

var _pairCmdOpts struct {
	deviceName string
	deviceID   string
}

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Register with the account username and password, and print the tokens to save",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doPair(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("actron.username", "actron.password")
	},
}

func init() {
	pairCmd.Flags().StringVar(&_pairCmdOpts.deviceName, "device-name", "actronctl", "name the pairing is listed under on the account")
	pairCmd.Flags().StringVar(&_pairCmdOpts.deviceID, "device-id", "", "unique ID of this device (default random)")

	errPanic(viper.GetViper().BindPFlag("pair.device-name", pairCmd.Flags().Lookup("device-name")))
	errPanic(viper.GetViper().BindPFlag("pair.device-id", pairCmd.Flags().Lookup("device-id")))

	rootCmd.AddCommand(pairCmd)
}

func doPair() error {
	return withClient(func(ctx context.Context, c *actron.Client) error {
		if _, err := c.RequestPairingToken(ctx, viper.GetString("pair.device-name"), viper.GetString("pair.device-id")); err != nil {
			return errors.Wrap(err, "pairing")
		}

		tok, err := c.RefreshToken(ctx)
		if err != nil {
			return errors.Wrap(err, "fetching a bearer token with the new pairing")
		}

		fmt.Printf("Paired, bearer token valid until %s\n", tok.ExpiresAt.Format("2006-01-02 15:04:05"))
		printTokens(c)
		return nil
	})
}
