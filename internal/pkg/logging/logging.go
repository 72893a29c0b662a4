package logging

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"

	stdlog "log"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

/*
 *  Provides diagnostics logging for the SDK and the CLI.  All entries are
 *  tagged with the actron_neo_api channel so that SDK output can be
 *  filtered independently of the host application.
 */

// Channel is the logger channel name attached to every entry
const Channel = "actron_neo_api"

type ctxID int

const (
	txnIDKey ctxID = iota
)

// WithTxnID returns a context which knows its transaction ID
func WithTxnID(ctx context.Context, txnID string) context.Context {
	return context.WithValue(ctx, txnIDKey, txnID)
}

// TxnID returns the transaction ID stored in the context, if any
func TxnID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	txnID, ok := ctx.Value(txnIDKey).(string)
	return txnID, ok
}

type logger struct {
	mu      sync.RWMutex
	base    *logrus.Logger
	logger  *logrus.Entry
	logFile *os.File
}

// The one singleton logger
var gLogger logger
var gInstanceID string

// Logger returns the global logger
func Logger(ctx context.Context) *logrus.Entry {
	gLogger.mu.RLock()
	entry := gLogger.logger
	gLogger.mu.RUnlock()

	if txnID, ok := TxnID(ctx); ok {
		return entry.WithFields(
			logrus.Fields{
				"txnid": txnID,
			},
		)
	}

	return entry
}

func init() {
	// Viper defaults
	viper.SetDefault("logging.location", "stderr")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.level", "warn")

	// The app instantiation ID
	gInstanceID = uuid.New().String()

	gLogger.base = logrus.New()
	gLogger.base.SetLevel(logrus.WarnLevel)
	gLogger.logger = gLogger.base.WithFields(baseFields())
}

func baseFields() logrus.Fields {
	return logrus.Fields{
		"logger":   Channel,
		"pid":      os.Getpid(),
		"exe":      path.Base(os.Args[0]),
		"instance": gInstanceID,
	}
}

// Base returns the channel's underlying logger, for attaching hooks
func Base() *logrus.Logger {
	gLogger.mu.RLock()
	defer gLogger.mu.RUnlock()
	return gLogger.base
}

// SetLevel changes the verbosity of the actron_neo_api channel
func SetLevel(level logrus.Level) {
	gLogger.mu.Lock()
	defer gLogger.mu.Unlock()
	gLogger.base.SetLevel(level)
}

// IsLevelEnabled reports whether the channel logs at level
func IsLevelEnabled(level logrus.Level) bool {
	gLogger.mu.RLock()
	defer gLogger.mu.RUnlock()
	return gLogger.base.IsLevelEnabled(level)
}

// Configure sets the log level and output location/format
func Configure(cfg *viper.Viper) error {
	gLogger.mu.Lock()
	defer gLogger.mu.Unlock()

	// Configure system log location
	switch loc := cfg.GetString("logging.location"); loc {
	case "stdout":
		gLogger.base.SetOutput(os.Stdout)
	case "stderr":
		gLogger.base.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(loc, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}

		gLogger.logger.Debugf("Switching system log to %s", loc)
		gLogger.base.SetOutput(file)

		if gLogger.logFile != nil {
			gLogger.logFile.Close()
		}
		gLogger.logFile = file
	}

	// Obey the level setting in the config if not already in debug mode
	if !gLogger.base.IsLevelEnabled(logrus.DebugLevel) {
		level := cfg.GetString("logging.level")
		val, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("bad log level: [%s]", level)
		}
		gLogger.base.SetLevel(val)
	}

	if cfg.GetString("logging.format") == "json" {
		gLogger.base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		gLogger.base.SetFormatter(&logrus.TextFormatter{})
	}

	gLogger.logger = gLogger.base.WithFields(baseFields())

	// Override the standard system logger
	stdlog.SetOutput(gLogger.logger.WriterLevel(logrus.DebugLevel))

	return nil
}
