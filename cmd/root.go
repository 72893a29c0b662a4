package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
	"github.com/jake-scott/actron-nimbus/pkg/actron"
)

var _rootCmdOpts struct {
	cfgFile        string
	debug          bool
	username       string
	password       string
	platform       string
	baseURL        string
	clientID       string
	serial         string
	requestTimeout time.Duration
}

var rootCmd = &cobra.Command{
	Use:           "actronctl",
	Short:         "Control Actron Air systems through the Nimbus cloud",
	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _rootCmdOpts.debug {
			logging.SetLevel(logrus.DebugLevel)
		}
		return logging.Configure(viper.GetViper())
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&_rootCmdOpts.cfgFile, "config", "", "config file (default is $HOME/.actronctl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&_rootCmdOpts.debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&_rootCmdOpts.username, "username", "", "Actron account email")
	rootCmd.PersistentFlags().StringVar(&_rootCmdOpts.password, "password", "", "Actron account password")
	rootCmd.PersistentFlags().StringVar(&_rootCmdOpts.platform, "platform", string(actron.PlatformNeo), "Nimbus platform, neo or que")
	rootCmd.PersistentFlags().StringVar(&_rootCmdOpts.baseURL, "base-url", "", "API base URL, overrides --platform, eg. http://localhost:8080 for the simulator")
	rootCmd.PersistentFlags().StringVar(&_rootCmdOpts.clientID, "client-id", "", "OAuth2 client ID for the device code flow")
	rootCmd.PersistentFlags().StringVarP(&_rootCmdOpts.serial, "serial", "s", "", "serial number of the AC system, needed when the account has more than one")
	rootCmd.PersistentFlags().DurationVar(&_rootCmdOpts.requestTimeout, "request-timeout", time.Second*30, "maximum duration of an API call, eg. 1m or 10s")

	errPanic(viper.GetViper().BindPFlag("actron.username", rootCmd.PersistentFlags().Lookup("username")))
	errPanic(viper.GetViper().BindPFlag("actron.password", rootCmd.PersistentFlags().Lookup("password")))
	errPanic(viper.GetViper().BindPFlag("actron.platform", rootCmd.PersistentFlags().Lookup("platform")))
	errPanic(viper.GetViper().BindPFlag("actron.base-url", rootCmd.PersistentFlags().Lookup("base-url")))
	errPanic(viper.GetViper().BindPFlag("actron.client-id", rootCmd.PersistentFlags().Lookup("client-id")))
	errPanic(viper.GetViper().BindPFlag("actron.serial", rootCmd.PersistentFlags().Lookup("serial")))
	errPanic(viper.GetViper().BindPFlag("actron.request-timeout", rootCmd.PersistentFlags().Lookup("request-timeout")))
}

func initConfig() {
	if _rootCmdOpts.cfgFile != "" {
		viper.SetConfigFile(_rootCmdOpts.cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			logging.Logger(nil).WithError(err).Warn("locating home directory")
		} else {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".actronctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ACTRON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || _rootCmdOpts.cfgFile != "" {
			logging.Logger(nil).WithError(err).Warn("reading config file")
		}
		return
	}
	logging.Logger(nil).Debugf("Using config file %s", viper.ConfigFileUsed())
}

func errPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func checkRequiredFlags(needFlags ...string) error {
	missingFlags := []string{}

	for _, f := range needFlags {
		if !viper.IsSet(f) || viper.GetString(f) == "" {
			missingFlags = append(missingFlags, f)
		}
	}

	if len(missingFlags) > 0 {
		itemPlural := "item"
		if len(missingFlags) > 1 {
			itemPlural = "items"
		}
		return fmt.Errorf("required config %s `%s` not set", itemPlural, strings.Join(missingFlags, "`, `"))
	}

	return nil
}

// newClient builds a client from the actron.* settings
func newClient() (*actron.Client, error) {
	opts := []actron.ClientOption{
		actron.WithRequestTimeout(viper.GetDuration("actron.request-timeout")),
	}

	if u := viper.GetString("actron.base-url"); u != "" {
		opts = append(opts, actron.WithBaseURL(u))
	} else {
		p, err := actron.ParsePlatform(viper.GetString("actron.platform"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, actron.WithPlatform(p))
	}

	if id := viper.GetString("actron.client-id"); id != "" {
		opts = append(opts, actron.WithClientID(id))
	}
	if u, p := viper.GetString("actron.username"), viper.GetString("actron.password"); u != "" || p != "" {
		opts = append(opts, actron.WithCredentials(u, p))
	}
	if t := viper.GetString("actron.pairing-token"); t != "" {
		opts = append(opts, actron.WithPairingToken(t))
	}
	if t := viper.GetString("actron.refresh-token"); t != "" {
		opts = append(opts, actron.WithRefreshToken(t))
	}

	return actron.New(opts...)
}

// withClient runs fn with a client and a context cancelled on interrupt
func withClient(fn func(ctx context.Context, c *actron.Client) error) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := signalContext()
	defer cancel()

	return fn(ctx, c)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	go func() {
		select {
		case <-ch:
			logging.Logger(nil).Info("interrupted")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()

	return ctx, cancel
}

// selectSerial returns the configured serial, or the only system on the
// account
func selectSerial(ctx context.Context, c *actron.Client) (string, error) {
	if s := viper.GetString("actron.serial"); s != "" {
		return s, nil
	}

	systems, err := c.GetACSystems(ctx)
	if err != nil {
		return "", err
	}
	switch len(systems) {
	case 0:
		return "", fmt.Errorf("no AC systems on the account")
	case 1:
		return systems[0].SerialNumber(), nil
	}

	serials := make([]string, 0, len(systems))
	for _, s := range systems {
		serials = append(serials, s.SerialNumber())
	}
	return "", fmt.Errorf("account has %d systems, choose one with --serial: %s", len(systems), strings.Join(serials, ", "))
}

// printTokens shows the tokens worth saving to the config file
func printTokens(c *actron.Client) {
	st := c.SessionTokens()
	fmt.Println("Add to $HOME/.actronctl.yaml or the environment:")
	if st.PairingToken != "" {
		fmt.Printf("  actron.pairing-token: %s   (ACTRON_ACTRON_PAIRING_TOKEN)\n", st.PairingToken)
	}
	if st.RefreshToken != "" {
		fmt.Printf("  actron.refresh-token: %s   (ACTRON_ACTRON_REFRESH_TOKEN)\n", st.RefreshToken)
	}
}
