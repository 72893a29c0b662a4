package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
	"github.com/jake-scott/actron-nimbus/internal/pkg/simulator"
)

var _simulateCmdOpts struct {
	port            uint16
	tlsCertPath     string
	tlsKeyPath      string
	systems         []string
	zones           int
	username        string
	password        string
	autoApprove     bool
	changeInterval  time.Duration
	gracefulTimeout time.Duration
	readTimeout     time.Duration
	writeTimeout    time.Duration
	logRequests     bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a local simulation of the Nimbus cloud",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doSimulate(); err != nil {
			return err
		}

		return nil
	},
}

func init() {
	simulateCmd.Flags().Uint16Var(&_simulateCmdOpts.port, "port", 8080, "HTTP port number")
	simulateCmd.Flags().StringVar(&_simulateCmdOpts.tlsCertPath, "tls-cert", "", "TLS certificate file, serves HTTPS when set with --tls-key")
	simulateCmd.Flags().StringVar(&_simulateCmdOpts.tlsKeyPath, "tls-key", "", "TLS key file")
	simulateCmd.Flags().StringSliceVar(&_simulateCmdOpts.systems, "system", []string{"SIM0001"}, "serial numbers of the simulated systems")
	simulateCmd.Flags().IntVar(&_simulateCmdOpts.zones, "zones", 4, "zones per simulated system, 1 to 8")
	simulateCmd.Flags().StringVar(&_simulateCmdOpts.username, "sim-username", "", "account username accepted for pairing (default any)")
	simulateCmd.Flags().StringVar(&_simulateCmdOpts.password, "sim-password", "", "account password accepted for pairing")
	simulateCmd.Flags().BoolVar(&_simulateCmdOpts.autoApprove, "auto-approve", false, "approve device codes as soon as they are issued")
	simulateCmd.Flags().DurationVar(&_simulateCmdOpts.changeInterval, "change-interval", time.Second*30, "duration between simulated temperature changes, 0 to disable")
	simulateCmd.Flags().DurationVar(&_simulateCmdOpts.gracefulTimeout, "graceful-timeout", time.Second*15, "duration to wait for server to finish, eg. 1m or 10s")
	simulateCmd.Flags().DurationVar(&_simulateCmdOpts.readTimeout, "read-timeout", time.Second*15, "duration to wait for request read, eg. 1m or 10s")
	simulateCmd.Flags().DurationVar(&_simulateCmdOpts.writeTimeout, "write-timeout", time.Second*60, "duration to wait for request write, eg. 1m or 10s")
	simulateCmd.Flags().BoolVar(&_simulateCmdOpts.logRequests, "log-requests", false, "log requests and responses (only in debug mode)")

	errPanic(viper.GetViper().BindPFlag("simulator.port", simulateCmd.Flags().Lookup("port")))
	errPanic(viper.GetViper().BindPFlag("simulator.tls-cert", simulateCmd.Flags().Lookup("tls-cert")))
	errPanic(viper.GetViper().BindPFlag("simulator.tls-key", simulateCmd.Flags().Lookup("tls-key")))
	errPanic(viper.GetViper().BindPFlag("simulator.systems", simulateCmd.Flags().Lookup("system")))
	errPanic(viper.GetViper().BindPFlag("simulator.zones", simulateCmd.Flags().Lookup("zones")))
	errPanic(viper.GetViper().BindPFlag("simulator.username", simulateCmd.Flags().Lookup("sim-username")))
	errPanic(viper.GetViper().BindPFlag("simulator.password", simulateCmd.Flags().Lookup("sim-password")))
	errPanic(viper.GetViper().BindPFlag("simulator.auto-approve", simulateCmd.Flags().Lookup("auto-approve")))
	errPanic(viper.GetViper().BindPFlag("simulator.change-interval", simulateCmd.Flags().Lookup("change-interval")))
	errPanic(viper.GetViper().BindPFlag("simulator.graceful-timeout", simulateCmd.Flags().Lookup("graceful-timeout")))
	errPanic(viper.GetViper().BindPFlag("simulator.read-timeout", simulateCmd.Flags().Lookup("read-timeout")))
	errPanic(viper.GetViper().BindPFlag("simulator.write-timeout", simulateCmd.Flags().Lookup("write-timeout")))
	errPanic(viper.GetViper().BindPFlag("logging.log-requests", simulateCmd.Flags().Lookup("log-requests")))

	rootCmd.AddCommand(simulateCmd)
}

// driftTemperatures publishes a small live temperature change for a
// random zone of each system every interval
func driftTemperatures(ctx context.Context, sim *simulator.Server, serials []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, serial := range serials {
			st, ok := sim.Status(serial)
			if !ok || len(st.Zones()) == 0 {
				continue
			}

			zones := st.Zones()
			z := zones[rand.Intn(len(zones))]
			temp := z.LiveTempC + float64(rand.Intn(5)-2)/10

			path := fmt.Sprintf("RemoteZoneInfo[%d].LiveTemp_oC", z.Index)
			if _, err := sim.PushChange(serial, map[string]interface{}{path: temp}); err != nil {
				logging.Logger(nil).WithError(err).Warnf("simulating change on %s", serial)
			}
		}
	}
}

func doSimulate() error {
	wait := viper.GetDuration("simulator.graceful-timeout")
	port := viper.GetUint("simulator.port")
	certFile := viper.GetString("simulator.tls-cert")
	keyFile := viper.GetString("simulator.tls-key")
	serials := viper.GetStringSlice("simulator.systems")

	var logRequests bool
	if viper.GetBool("logging.log-requests") {
		if logging.IsLevelEnabled(logrus.DebugLevel) {
			logRequests = true
		} else {
			logging.Logger(nil).Warn("log-requests ignored when not in debug mode")
		}
	}

	sim := simulator.New(simulator.Options{
		Username:    viper.GetString("simulator.username"),
		Password:    viper.GetString("simulator.password"),
		AutoApprove: viper.GetBool("simulator.auto-approve"),
		LogRequests: logRequests,
	})
	for i, serial := range serials {
		if err := sim.AddSystem(serial, fmt.Sprintf("Simulated system %d", i+1), viper.GetInt("simulator.zones")); err != nil {
			return err
		}
	}

	s := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		ReadTimeout:  viper.GetDuration("simulator.read-timeout"),
		WriteTimeout: viper.GetDuration("simulator.write-timeout"),
		IdleTimeout:  time.Second * 60,
		Handler:      sim.Handler(),
	}

	ctx, stopDrift := context.WithCancel(context.Background())
	defer stopDrift()
	if interval := viper.GetDuration("simulator.change-interval"); interval > 0 {
		go driftTemperatures(ctx, sim, serials, interval)
	}

	logging.Logger(nil).Infof("Simulating %d system(s) on port %d", len(serials), port)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			err = s.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = s.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logging.Logger(nil).WithError(err).Error("running simulator")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	// Block until we receive a signal
	<-c
	stopDrift()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	logging.Logger(nil).Info("shutting down")
	if err := s.Shutdown(shutdownCtx); err != nil {
		logging.Logger(nil).WithError(err).Errorf("shutting down")
	}
	logging.Logger(nil).Info("exiting")
	return nil
}
