package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/actron-nimbus/pkg/actron"
)

var _systemsAsJSON bool

var systemsCmd = &cobra.Command{
	Use:   "systems",
	Short: "List the AC systems on the account",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doSystems(); err != nil {
			return err
		}

		return nil
	},
}

func init() {
	systemsCmd.Flags().BoolVar(&_systemsAsJSON, "json", false, "Return systems as JSON")
	errPanic(viper.GetViper().BindPFlag("systems.json", systemsCmd.Flags().Lookup("json")))

	rootCmd.AddCommand(systemsCmd)
}

func doSystems() error {
	return withClient(func(ctx context.Context, c *actron.Client) error {
		systems, err := c.GetACSystems(ctx)
		if err != nil {
			return err
		}

		if viper.GetBool("systems.json") {
			b, err := json.MarshalIndent(systems, "", "    ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SERIAL\tTYPE\tDESCRIPTION")
		for _, s := range systems {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.SerialNumber(), s.Type, s.Description)
		}
		return w.Flush()
	})
}
