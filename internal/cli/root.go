package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// settings holds flag and MOSAIC_* environment overrides. Config file
// discovery stays on the global viper instance.
var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:   "mosaic",
	Short: "Bounded discovery memory",
	Long: `mosaic - a bounded, metadata-tagged record store.

Records are kept in insertion order up to a fixed capacity; the oldest
record is evicted first. The store is persisted between commands as a
snapshot in a file, SQLite or in-memory backend.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, registerCompletions)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./mosaic.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.Int("capacity", 0, "override store.capacity")
	flags.String("snapshot", "", "override snapshot.name")
	flags.String("driver", "", "override snapshot.driver (memory, file, sqlite, sqlite-pure)")
	flags.String("path", "", "override snapshot.path")

	_ = settings.BindPFlag("store.capacity", flags.Lookup("capacity"))
	_ = settings.BindPFlag("snapshot.name", flags.Lookup("snapshot"))
	_ = settings.BindPFlag("snapshot.driver", flags.Lookup("driver"))
	_ = settings.BindPFlag("snapshot.path", flags.Lookup("path"))

	settings.SetEnvPrefix("MOSAIC")
	settings.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	settings.AutomaticEnv()

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("mosaic")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
