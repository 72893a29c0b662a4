package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jake-scott/actron-nimbus/pkg/actron"
)

var tempCmd = &cobra.Command{
	Use:   "temp cool|heat TEMP | temp auto HEAT COOL",
	Short: "Set the system setpoint and mode",
	Long: `Set the system setpoint and select the mode.

  actronctl temp cool 23.5
  actronctl temp heat 20
  actronctl temp auto 19 25`,
	Args: cobra.RangeArgs(2, 3),

	RunE: func(cmd *cobra.Command, args []string) error {
		mode := strings.ToUpper(args[0])
		temps, err := parseTemps(mode, args[1:])
		if err != nil {
			return err
		}

		return sendTo(func(ctx context.Context, c *actron.Client, serial string) error {
			if mode == "AUTO" {
				return c.SetAutoTemperature(ctx, serial, temps[0], temps[1])
			}
			return c.SetTemperature(ctx, serial, mode, temps[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(tempCmd)
}

// parseTemps returns one setpoint, or heat and cool for AUTO
func parseTemps(mode string, args []string) ([]float64, error) {
	want := 1
	if mode == "AUTO" {
		want = 2
	}
	if len(args) != want {
		return nil, fmt.Errorf("mode %s takes %d temperature(s)", mode, want)
	}

	out := make([]float64, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("bad temperature %q", a)
		}
		out = append(out, v)
	}
	return out, nil
}
