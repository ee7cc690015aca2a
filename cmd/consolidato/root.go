package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	consolidato "github.com/soundprediction/consolidato"
	"github.com/soundprediction/consolidato/pkg/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "consolidato",
		Short: "Consolidato: entity consolidation and hybrid retrieval engine",
		Long: `Consolidato converges independently-extracted candidate facts about
organizational concepts into one consistent, provenance-tracked knowledge
base, and answers queries by fusing vector and graph search.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initConfig()
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.consolidato.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store-backend", "", "knowledge store backend (postgres, sqlite, memory)")
	rootCmd.PersistentFlags().String("store-dsn", "", "knowledge store connection string")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("store.backend", rootCmd.PersistentFlags().Lookup("store-backend"))
	viper.BindPFlag("store.dsn", rootCmd.PersistentFlags().Lookup("store-dsn"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".consolidato")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newClient builds the engine client from the resolved configuration.
func newClient() (*consolidato.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return consolidato.New(cfg)
}
