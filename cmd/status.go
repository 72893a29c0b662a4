package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/actron-nimbus/pkg/actron"
	"github.com/jake-scott/actron-nimbus/pkg/models"
)

var _statusAsJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of an AC system and its zones",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doStatus(); err != nil {
			return err
		}

		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&_statusAsJSON, "json", false, "Return the full status document as JSON")
	errPanic(viper.GetViper().BindPFlag("status.json", statusCmd.Flags().Lookup("json")))

	rootCmd.AddCommand(statusCmd)
}

// loadSystem selects a system and fetches its full status
func loadSystem(ctx context.Context, c *actron.Client) (string, *models.Status, error) {
	serial, err := selectSerial(ctx, c)
	if err != nil {
		return "", nil, err
	}
	if err := c.UpdateStatus(ctx, serial); err != nil {
		return "", nil, err
	}

	st, ok := c.GetStatus(serial)
	if !ok {
		return "", nil, fmt.Errorf("no status for %s", serial)
	}
	return serial, st, nil
}

func doStatus() error {
	return withClient(func(ctx context.Context, c *actron.Client) error {
		_, st, err := loadSystem(ctx, c)
		if err != nil {
			return err
		}

		if viper.GetBool("status.json") {
			b, err := st.MarshalBinary()
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}

		printStatus(st)
		return nil
	})
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printStatus(st *models.Status) {
	set := st.Settings()

	name := st.SystemName()
	if name == "" {
		name = st.Serial
	}
	fmt.Printf("%s (%s, online: %v)\n", name, st.Serial, st.IsOnline)
	fmt.Printf("  power %s, mode %s, fan %s\n", onOff(set.IsOn), set.Mode, set.FanMode)
	fmt.Printf("  setpoints cool %.1f°C, heat %.1f°C\n", set.TemperatureSetpointCoolC, set.TemperatureSetpointHeatC)
	fmt.Printf("  quiet mode %s, away mode %s\n", onOff(set.QuietModeEnabled), onOff(set.AwayMode))
	if st.LastKnownState != nil && st.LastKnownState.MasterInfo != nil {
		mi := st.LastKnownState.MasterInfo
		fmt.Printf("  indoor %.1f°C %.0f%%, outdoor %.1f°C\n", mi.LiveTempC, mi.LiveHumidityPC, mi.LiveOutdoorTempC)
	}

	zones := st.Zones()
	if len(zones) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nZONE\tNAME\tENABLED\tTEMP\tHUMIDITY\tCOOL\tHEAT")
	for _, z := range zones {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\t%.0f%%\t%.1f\t%.1f\n",
			z.Index, z.Title, onOff(z.Enabled), z.LiveTempC, z.Humidity(),
			z.TemperatureSetpointCoolC, z.TemperatureSetpointHeatC)
	}
	w.Flush()
}
