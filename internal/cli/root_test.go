package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ember", cmd.Use)
	assert.Contains(t, cmd.Long, "navigation router")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "nav", "wallet", "scenario", "config"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestWalletSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"connect", "unlock", "lock", "disconnect", "status"} {
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{"wallet", name})
			require.NoError(t, err)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"db", "storage"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue)
	}
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"identity", "feed", "relay", "duration"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "0s", runCmd.Flags().Lookup("duration").DefValue)
}

func TestScenarioCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	scenarioCmd, _, err := cmd.Find([]string{"scenario"})
	require.NoError(t, err)

	assert.Equal(t, "false", scenarioCmd.Flags().Lookup("update").DefValue)
	assert.NotNil(t, scenarioCmd.Flags().Lookup("filter"))
	assert.NotNil(t, scenarioCmd.Flags().Lookup("golden"))
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"config", "--format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestLoadConfigOverrides(t *testing.T) {
	opts := &RootOptions{DataDir: "/tmp/ember-test", Storage: "badger"}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ember-test", cfg.DataDir)
	assert.Equal(t, "badger", cfg.Storage)

	opts = &RootOptions{Storage: "etcd"}
	_, err = opts.loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
