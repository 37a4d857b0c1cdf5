// Package cli wires Hoard's command-line surface: a cobra root command
// with one subcommand per operation in spec.md §6.5 (write, writelong,
// read, readlong, pack), mirroring the teacher's registry/root.go
// root-command-plus-subcommands layout.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hoardstore/hoard/codec"
	"github.com/hoardstore/hoard/config"
)

var verbose bool
var configPath string

// cfg is the tunables in effect for this invocation: config.Default()
// unless --config names a file, overridden further by HOARD_* environment
// variables exactly as config.Parse documents.
var cfg = config.Default()

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML tunables file (see config.Config)")
	RootCmd.AddCommand(writeCmd)
	RootCmd.AddCommand(writeLongCmd)
	RootCmd.AddCommand(readCmd)
	RootCmd.AddCommand(readLongCmd)
	RootCmd.AddCommand(packCmd)
}

// RootCmd is the main command for the 'hoard' binary.
var RootCmd = &cobra.Command{
	Use:   "hoard",
	Short: "hoard is a content-addressed block store",
	Long:  "hoard is a content-addressed block store",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		configureLogging()
	},
	Run: func(cmd *cobra.Command, args []string) {
		// nolint:errcheck
		cmd.Usage()
	},
}

// loadConfig replaces cfg with the result of parsing configPath, when set,
// and applies its probe threshold to codec.PredictabilityThreshold.
// An empty --config leaves cfg at config.Default() plus environment
// overrides, since config.Parse applies those even for an empty document.
func loadConfig() {
	var rd io.Reader = strings.NewReader("")
	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			fatalf("hoard: opening config %s: %v", configPath, err)
		}
		defer f.Close()
		rd = f
	}

	parsed, err := config.Parse(rd)
	if err != nil {
		fatalf("hoard: parsing config: %v", err)
	}
	cfg = *parsed
	codec.PredictabilityThreshold = cfg.Compression.PredictabilityThreshold
}

// configureLogging sets the logrus level from cfg.Log.Level and Log.Formatter,
// with -v/--verbose forcing debug level regardless of what the config says.
func configureLogging() {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if cfg.Log.Formatter == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{})
	}
}

// fatalf prints an error to stderr and exits with the "any other error"
// code per spec.md §6.5.
func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(255)
}
