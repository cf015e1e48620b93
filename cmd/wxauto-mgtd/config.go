package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// exitError carries the process exit code spec §6 assigns to a failure
// class: 2 configuration error, 3 store-open failure, 4 fatal runtime.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(err error) error  { return &exitError{code: 2, err: err} }
func storeErr(err error) error   { return &exitError{code: 3, err: err} }
func runtimeErr(err error) error { return &exitError{code: 4, err: err} }

func exitCodeFor(err error) int {
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	return 1
}

// registerConfigFlags wires the given command's persistent flags to viper.
// Viper's precedence applies: a flag given on the command line wins over
// the matching WXAUTO_-prefixed environment variable, which wins over the
// flag's default (there is no separate config file surface here; the seed
// file fills that role for entity data).
func registerConfigFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("bind-addr", ":8080", "management HTTP API listen address")
	cmd.PersistentFlags().String("data-dir", "./data", "directory holding the SQLite database")
	cmd.PersistentFlags().String("tls-cert", "", "TLS certificate file (enables TLS with --tls-key)")
	cmd.PersistentFlags().String("tls-key", "", "TLS private key file")
	cmd.PersistentFlags().String("master-key", "", "base64-encoded AES-256 key for at-rest secret encryption")
	cmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	cmd.PersistentFlags().String("health-check-cron", "@every 5s", "cron spec for the health-check sweep's resolution; each instance is still only actually probed every health_check_interval_s per its own config")
	cmd.PersistentFlags().Int("dispatch-workers", 4, "number of concurrent delivery workers")
	cmd.PersistentFlags().String("seed-file", "", "optional YAML file of instances/platforms/rules to load at boot")

	for _, name := range []string{
		"bind-addr", "data-dir", "tls-cert", "tls-key", "master-key",
		"log-level", "health-check-cron", "dispatch-workers", "seed-file",
	} {
		_ = viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name))
	}

	viper.SetEnvPrefix("wxauto")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

type settings struct {
	BindAddr        string
	DataDir         string
	TLSCertFile     string
	TLSKeyFile      string
	MasterKey       string
	LogLevel        string
	HealthCheckCron string
	DispatchWorkers int
	SeedFile        string
}

func loadSettings() settings {
	return settings{
		BindAddr:        viper.GetString("bind-addr"),
		DataDir:         viper.GetString("data-dir"),
		TLSCertFile:     viper.GetString("tls-cert"),
		TLSKeyFile:      viper.GetString("tls-key"),
		MasterKey:       viper.GetString("master-key"),
		LogLevel:        viper.GetString("log-level"),
		HealthCheckCron: viper.GetString("health-check-cron"),
		DispatchWorkers: viper.GetInt("dispatch-workers"),
		SeedFile:        viper.GetString("seed-file"),
	}
}
