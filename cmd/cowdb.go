package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/cowdb/config"
	"github.com/leftmike/cowdb/db"
	"github.com/leftmike/cowdb/kv"
	"github.com/leftmike/cowdb/page"
)

var (
	cowdbCmd = &cobra.Command{
		Use:               "cowdb",
		Short:             "An embedded key-value database",
		Long:              "Cowdb is an embedded copy-on-write key-value database with snapshot isolation.",
		PersistentPreRunE: cowdbPreRun,
		PersistentPostRun: cowdbPostRun,
		SilenceUsage:      true,
	}

	logFile   = "cowdb.log"
	logLevel  = "info"
	logStderr = false
	logWriter io.WriteCloser

	configFile = "cowdb.hcl"
	noConfig   = false

	store        = db.DefaultStore
	dataPath     = "cowdb.data"
	compression  = page.SnappyCompression.String()
	cacheSize    = int64(page.DefaultCacheSize)
	noSync       = false
	writeTimeout = time.Duration(0)

	cfg *config.Config
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	fs := cowdbCmd.PersistentFlags()
	cfg = config.NewConfig(fs)

	fs.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	cfg.Var("log-file")

	fs.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	cfg.Var("log-level")

	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")

	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")

	fs.StringVar(&store, "store", store, fmt.Sprintf("backend to use: %v", kv.Stores))
	cfg.Var("store")

	fs.StringVar(&dataPath, "data", dataPath, "`path` of the database")
	cfg.Var("data")

	fs.StringVar(&compression, "compression", compression,
		"page compression: none, snappy, lz4, or zstd")
	cfg.Var("compression")

	fs.Int64Var(&cacheSize, "cache-size", cacheSize, "`bytes` of decoded pages to cache")
	cfg.Var("cache-size")

	fs.BoolVar(&noSync, "no-sync", noSync, "don't sync commits to disk")
	cfg.Var("no-sync")

	fs.DurationVar(&writeTimeout, "write-timeout", writeTimeout,
		"how long to wait for another write transaction; 0 waits forever")
	cfg.Var("write-timeout")
}

func Execute() error {
	return cowdbCmd.Execute()
}

func cowdbPreRun(cmd *cobra.Command, args []string) error {
	if noConfig {
		configFile = ""
	}
	err := cfg.Load(configFile, cmd.Flags().Changed("config-file"))
	if err != nil {
		return fmt.Errorf("cowdb: %s", err)
	}

	if !logStderr && logFile != "" {
		var err error
		logWriter, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("cowdb: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("cowdb: %s", err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("cowdb starting")
	return nil
}

func cowdbPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("cowdb done")

	if logWriter != nil {
		logWriter.Close()
	}
}

func options(reg prometheus.Registerer) (*db.Options, error) {
	c, err := page.ParseCompression(compression)
	if err != nil {
		return nil, err
	}

	return &db.Options{
		Store:        store,
		Compression:  c,
		CacheSize:    cacheSize,
		NoSync:       noSync,
		WriteTimeout: writeTimeout,
		Logger:       log.StandardLogger(),
		Registerer:   reg,
	}, nil
}

// createDatabase opens the database, creating it if necessary.
func createDatabase(reg prometheus.Registerer) (*db.Database, error) {
	opts, err := options(reg)
	if err != nil {
		return nil, err
	}
	return db.Create(dataPath, opts)
}

func openDatabase() (*db.Database, error) {
	opts, err := options(nil)
	if err != nil {
		return nil, err
	}
	return db.Open(dataPath, opts)
}

func closeDatabase(d *db.Database, err error) error {
	cerr := d.Close()
	if err == nil {
		err = cerr
	}
	return err
}
