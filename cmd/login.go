package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
	"github.com/jake-scott/actron-nimbus/pkg/actron"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize this tool in a browser with the OAuth2 device code flow, and print the tokens to save",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doLogin(); err != nil {
			return err
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func doLogin() error {
	return withClient(func(ctx context.Context, c *actron.Client) error {
		dc, err := c.RequestDeviceCode(ctx)
		if err != nil {
			return errors.Wrap(err, "requesting device code")
		}

		fmt.Printf("Open %s and enter the code %s\n", *dc.VerificationURI, *dc.UserCode)
		if dc.VerificationURIComplete != "" {
			fmt.Printf("or open %s\n", dc.VerificationURIComplete)
		}

		interval := time.Duration(dc.Interval) * time.Second
		deadline := time.Now().Add(time.Duration(*dc.ExpiresIn) * time.Second)

		for {
			logging.Logger(nil).Debugf("Waiting %s before polling", interval)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}

			res, err := c.PollForToken(ctx, *dc.DeviceCode)
			if err != nil {
				return errors.Wrap(err, "waiting for authorization")
			}

			switch res.Status {
			case actron.PollGranted:
				fmt.Println("Authorized")
				printTokens(c)
				return nil
			case actron.PollSlowDown:
				interval += actron.SlowDownIncrement
			}

			if time.Now().After(deadline) {
				return errors.New("device code expired before authorization")
			}
		}
	})
}
