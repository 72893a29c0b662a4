package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
	"github.com/jake-scott/actron-nimbus/pkg/actron"
)

var _eventsCmdOpts struct {
	follow   bool
	interval time.Duration
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Track a system from its event feed and show the status as it changes",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doEvents(); err != nil {
			return err
		}

		return nil
	},
}

func init() {
	eventsCmd.Flags().BoolVarP(&_eventsCmdOpts.follow, "follow", "f", false, "keep reading the feed until interrupted")
	eventsCmd.Flags().DurationVar(&_eventsCmdOpts.interval, "interval", time.Second*15, "duration between feed reads with --follow, eg. 1m or 10s")

	errPanic(viper.GetViper().BindPFlag("events.follow", eventsCmd.Flags().Lookup("follow")))
	errPanic(viper.GetViper().BindPFlag("events.interval", eventsCmd.Flags().Lookup("interval")))

	rootCmd.AddCommand(eventsCmd)
}

func doEvents() error {
	follow := viper.GetBool("events.follow")
	interval := viper.GetDuration("events.interval")
	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	return withClient(func(ctx context.Context, c *actron.Client) error {
		serial, st, err := loadSystem(ctx, c)
		if err != nil {
			return err
		}
		printStatus(st)

		for {
			n, err := c.UpdateEvents(ctx, serial)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if !follow {
					return err
				}
				logging.Logger(nil).WithError(err).Warn("reading event feed")
			}

			if n > 0 {
				st, _ = c.GetStatus(serial)
				fmt.Printf("\n%s: %d change(s)\n", time.Now().Format("15:04:05"), n)
				printStatus(st)
			}

			if !follow {
				return nil
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
	})
}
