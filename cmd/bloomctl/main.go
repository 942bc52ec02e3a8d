package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	dbDir      string
	bitsPerKey int
	verbose    bool

	log *zap.SugaredLogger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bloomctl",
	Short: "bloomctl builds and queries bloom filters and velocitylog stores",
	Long: `bloomctl works with self-describing bloom filters: a bit array followed by a
single byte holding the probe count.

It provides:
- build: create a filter from a list of keys
- query: test keys against a filter file
- inspect: report the size, probe count and fill of a filter
- kv: put, get, delete and scan keys in a velocitylog store`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbDir, "dir", "./velocitylog.db", "velocitylog store directory")
	rootCmd.PersistentFlags().IntVar(&bitsPerKey, "bits-per-key", 10, "Bloom filter bits per key")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")

	buildCmd.Flags().StringP("out", "o", "", "Output filter file (required)")
	buildCmd.MarkFlagRequired("out")
	queryCmd.Flags().StringP("filter", "f", "", "Filter file (required)")
	queryCmd.MarkFlagRequired("filter")

	kvCmd.AddCommand(kvPutCmd, kvGetCmd, kvDeleteCmd, kvScanCmd)
	rootCmd.AddCommand(buildCmd, queryCmd, inspectCmd, kvCmd)
}

func initLogger() error {
	var (
		l   *zap.Logger
		err error
	)
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		l, err = cfg.Build()
	}
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log = l.Sugar()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
