package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jake-scott/actron-nimbus/pkg/actron"
)

var zoneCmd = &cobra.Command{
	Use:   "zone",
	Short: "Control zones",
}

var zoneEnableCmd = &cobra.Command{
	Use:   "enable ZONE...",
	Short: "Enable zones, numbered from 0",
	Args:  cobra.MinimumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		return doZones(args, true)
	},
}

var zoneDisableCmd = &cobra.Command{
	Use:   "disable ZONE...",
	Short: "Disable zones, numbered from 0",
	Args:  cobra.MinimumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		return doZones(args, false)
	},
}

var zoneTempCmd = &cobra.Command{
	Use:   "temp ZONE cool|heat TEMP | temp ZONE auto HEAT COOL",
	Short: "Set a zone's setpoints",
	Args:  cobra.RangeArgs(3, 4),

	RunE: func(cmd *cobra.Command, args []string) error {
		zone, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad zone %q", args[0])
		}
		mode := strings.ToUpper(args[1])
		temps, err := parseTemps(mode, args[2:])
		if err != nil {
			return err
		}

		return sendTo(func(ctx context.Context, c *actron.Client, serial string) error {
			if mode == "AUTO" {
				return c.SetZoneAutoTemperature(ctx, serial, zone, temps[0], temps[1])
			}
			return c.SetZoneTemperature(ctx, serial, zone, mode, temps[0])
		})
	},
}

func init() {
	zoneCmd.AddCommand(zoneEnableCmd)
	zoneCmd.AddCommand(zoneDisableCmd)
	zoneCmd.AddCommand(zoneTempCmd)

	rootCmd.AddCommand(zoneCmd)
}

func doZones(args []string, enabled bool) error {
	zones := make(map[int]bool, len(args))
	for _, a := range args {
		z, err := strconv.Atoi(a)
		if err != nil {
			return fmt.Errorf("bad zone %q", a)
		}
		zones[z] = enabled
	}

	return sendTo(func(ctx context.Context, c *actron.Client, serial string) error {
		if len(zones) == 1 {
			for z := range zones {
				return c.SetZone(ctx, serial, z, enabled)
			}
		}
		return c.SetMultipleZones(ctx, serial, zones)
	})
}
