package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vitebski/interdb-migrator/internal/transfer"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

const (
	sourcePrefix = "source"
	destPrefix   = "dest"
)

// addEndpointFlags defines the connection flags of one side of a migration
func addEndpointFlags(flags *pflag.FlagSet, prefix, role string, engine models.Engine) {
	flags.String(prefix+"-engine", string(engine), fmt.Sprintf("%s engine (mysql, postgres)", role))
	flags.String(prefix+"-host", "localhost", fmt.Sprintf("%s host", role))
	flags.Int(prefix+"-port", 0, fmt.Sprintf("%s port (default: engine default)", role))
	flags.String(prefix+"-user", "", fmt.Sprintf("%s user", role))
	flags.String(prefix+"-password", "", fmt.Sprintf("%s password", role))
	flags.String(prefix+"-database", "", fmt.Sprintf("%s database name", role))
	flags.String(prefix+"-table", "", fmt.Sprintf("%s table name", role))
	flags.String(prefix+"-schema", "", fmt.Sprintf("%s Postgres schema (default: public)", role))

	flags.String(prefix+"-ssh-host", "", fmt.Sprintf("SSH host in front of the %s database", role))
	flags.Int(prefix+"-ssh-port", 22, "SSH port")
	flags.String(prefix+"-ssh-user", "", "SSH user")
	flags.String(prefix+"-ssh-key", "", "Path to SSH private key file")
	flags.String(prefix+"-ssh-known-hosts", "", "Path to known_hosts file (host key checking is off when empty)")
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (yaml, toml or json)")
	flags.StringP("env-file", "e", ".env", "Path to .env file")
	flags.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.Int("batch-size", transfer.DefaultBatchSize, "Rows per batch transaction")
	flags.Bool("progress", false, "Show a progress bar per table")
	flags.String("metrics-addr", "", "Serve prometheus metrics on this address during the run (e.g. :9090)")

	addEndpointFlags(flags, sourcePrefix, "Source", models.MySQL)
	addEndpointFlags(flags, destPrefix, "Destination", models.MySQL)
}

// newViper reads flags, then INTERDB_* environment variables, then the
// config file, in that order of precedence
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("INTERDB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// bindCommand binds the flags of the running command and reads the config
// file if one was given
func bindCommand(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}
	return nil
}

// endpointConfig builds the connection config of one side
func endpointConfig(v *viper.Viper, prefix string) models.ConnectionConfig {
	get := func(key string) string { return v.GetString(prefix + "-" + key) }

	cfg := models.ConnectionConfig{
		Engine:    models.Engine(strings.ToLower(get("engine"))),
		Host:      get("host"),
		Port:      v.GetInt(prefix + "-port"),
		User:      get("user"),
		Password:  get("password"),
		Database:  get("database"),
		TableName: get("table"),
		Schema:    get("schema"),
	}
	if host := get("ssh-host"); host != "" {
		cfg.SSH = &models.SSHConfig{
			Host:           host,
			Port:           v.GetInt(prefix + "-ssh-port"),
			User:           get("ssh-user"),
			KeyPath:        get("ssh-key"),
			KnownHostsPath: get("ssh-known-hosts"),
		}
	}
	return cfg
}

// destinationConfig disables MySQL foreign key checks for the session so
// tables and rows can arrive in any order
func destinationConfig(v *viper.Viper) models.ConnectionConfig {
	cfg := endpointConfig(v, destPrefix)
	if cfg.Engine == models.MySQL {
		cfg.Params = map[string]string{"foreign_key_checks": "0"}
	}
	return cfg
}
