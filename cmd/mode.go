package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jake-scott/actron-nimbus/pkg/actron"
	"github.com/jake-scott/actron-nimbus/pkg/commands"
)

var _modeCmdOpts struct {
	quiet string
	away  string
}

var modeCmd = &cobra.Command{
	Use:       "mode on|off|auto|cool|heat|fan",
	Short:     "Turn a system on or off, or select its mode",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off", "auto", "cool", "heat", "fan"},

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doMode(args[0]); err != nil {
			return err
		}

		return nil
	},
}

var quietCmd = &cobra.Command{
	Use:   "quiet on|off",
	Short: "Turn quiet mode on or off",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return sendTo(func(ctx context.Context, c *actron.Client, serial string) error {
			return c.SetQuietMode(ctx, serial, enabled)
		})
	},
}

var awayCmd = &cobra.Command{
	Use:   "away on|off",
	Short: "Turn away mode on or off",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return sendTo(func(ctx context.Context, c *actron.Client, serial string) error {
			return c.SetAwayMode(ctx, serial, enabled)
		})
	},
}

func init() {
	modeCmd.Flags().StringVar(&_modeCmdOpts.quiet, "quiet", "", "also turn quiet mode on or off")
	modeCmd.Flags().StringVar(&_modeCmdOpts.away, "away", "", "also turn away mode on or off")

	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(quietCmd)
	rootCmd.AddCommand(awayCmd)
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, not %q", s)
}

// sendTo loads the selected system's status, so commands are checked
// against its limits and zones, and calls fn
func sendTo(fn func(ctx context.Context, c *actron.Client, serial string) error) error {
	return withClient(func(ctx context.Context, c *actron.Client) error {
		serial, _, err := loadSystem(ctx, c)
		if err != nil {
			return err
		}
		if err := fn(ctx, c, serial); err != nil {
			return err
		}
		fmt.Println("Command sent")
		return nil
	})
}

func doMode(arg string) error {
	isOn, mode := true, arg
	switch strings.ToLower(arg) {
	case "on":
		mode = ""
	case "off":
		isOn, mode = false, ""
	}

	cmd, err := commands.SystemMode(isOn, mode)
	if err != nil {
		return err
	}
	extra, err := modeExtras()
	if err != nil {
		return err
	}

	return sendTo(func(ctx context.Context, c *actron.Client, serial string) error {
		return c.SendCommands(ctx, serial, append([]*commands.Command{cmd}, extra...)...)
	})
}

// modeExtras builds the quiet and away commands sent along with a mode change
func modeExtras() ([]*commands.Command, error) {
	var out []*commands.Command
	if _modeCmdOpts.quiet != "" {
		on, err := parseOnOff(_modeCmdOpts.quiet)
		if err != nil {
			return nil, errors.Wrap(err, "--quiet")
		}
		out = append(out, commands.QuietMode(on))
	}
	if _modeCmdOpts.away != "" {
		on, err := parseOnOff(_modeCmdOpts.away)
		if err != nil {
			return nil, errors.Wrap(err, "--away")
		}
		out = append(out, commands.AwayMode(on))
	}
	return out, nil
}
