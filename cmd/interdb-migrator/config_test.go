package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

func TestEndpointConfigFromEnvironment(t *testing.T) {
	t.Setenv("INTERDB_SOURCE_ENGINE", "MySQL")
	t.Setenv("INTERDB_SOURCE_HOST", "db.internal")
	t.Setenv("INTERDB_SOURCE_PORT", "3307")
	t.Setenv("INTERDB_SOURCE_DATABASE", "shop")
	t.Setenv("INTERDB_SOURCE_SSH_HOST", "bastion")
	t.Setenv("INTERDB_SOURCE_SSH_PORT", "2222")

	cfg := endpointConfig(newViper(), sourcePrefix)

	assert.Equal(t, models.MySQL, cfg.Engine)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 3307, cfg.Port)
	assert.Equal(t, "shop", cfg.Database)
	require.NotNil(t, cfg.SSH)
	assert.Equal(t, "bastion", cfg.SSH.Host)
	assert.Equal(t, 2222, cfg.SSH.Port)
}

func TestDestinationConfigDisablesForeignKeyChecks(t *testing.T) {
	t.Setenv("INTERDB_DEST_ENGINE", "mysql")
	cfg := destinationConfig(newViper())
	assert.Equal(t, "0", cfg.Params["foreign_key_checks"])

	t.Setenv("INTERDB_DEST_ENGINE", "postgres")
	cfg = destinationConfig(newViper())
	assert.Empty(t, cfg.Params)
	assert.Nil(t, cfg.SSH)
}

func TestBindCommandFlagsAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "interdb.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("source-user: reader\nbatch-size: 250\n"), 0o600))

	root := &cobra.Command{Use: "root"}
	addGlobalFlags(root)
	child := &cobra.Command{Use: "child", Run: func(*cobra.Command, []string) {}}
	child.Flags().Bool("verify", false, "")
	root.AddCommand(child)

	require.NoError(t, root.ParseFlags(nil))
	require.NoError(t, child.ParseFlags([]string{"--verify", "--source-host", "10.0.0.5", "--config", cfgFile}))

	v := newViper()
	require.NoError(t, bindCommand(v, child))

	assert.True(t, v.GetBool("verify"))
	assert.Equal(t, "10.0.0.5", v.GetString("source-host"))
	assert.Equal(t, "reader", v.GetString("source-user"))
	assert.Equal(t, 250, v.GetInt("batch-size"))
	assert.Equal(t, "localhost", v.GetString("dest-host"))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "interdb-migrator dev\n", out.String())
}

func TestTableCommandRejectsIncompleteConfig(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"table", "--env-file", filepath.Join(t.TempDir(), "missing.env"), "--log-level", "panic",
		"--source-user", "root", "--source-table", "users"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.False(t, errors.Is(err, errNotOK))
	assert.Contains(t, err.Error(), "invalid source connection")
	assert.Contains(t, err.Error(), "Database is required")
}

func TestUnsupportedEnginePair(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"schema", "--env-file", filepath.Join(t.TempDir(), "missing.env"), "--log-level", "panic",
		"--source-engine", "postgres", "--source-user", "u", "--source-database", "a",
		"--dest-engine", "mysql", "--dest-user", "u", "--dest-database", "b"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}
