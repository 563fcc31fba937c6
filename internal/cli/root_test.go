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
	assert.Equal(t, "querybridge", cmd.Use)
	assert.Contains(t, cmd.Long, "record form")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"translate", "parse", "detect"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
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

	for _, name := range []string{"config", "max-depth", "record-format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestTranslateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	translateCmd, _, err := cmd.Find([]string{"translate"})
	require.NoError(t, err)

	for _, name := range []string{"from", "to", "each", "parameterize", "workers"} {
		assert.NotNil(t, translateCmd.Flags().Lookup(name), name)
	}
}

func TestRoot_InvalidFormat(t *testing.T) {
	_, err := execute(t, "", "detect", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRoot_ConfigFile(t *testing.T) {
	path := writeFile(t, "querybridge.yaml", "from: document\nto: relational\n")

	out, err := execute(t, "db.users.find({a: 1});", "translate", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE a = 1;\n", out)
}

func TestRoot_EnvOverridesConfigFile(t *testing.T) {
	path := writeFile(t, "querybridge.yaml", "from: document\nto: relational\n")
	t.Setenv("QUERYBRIDGE_TO", "document")

	out, err := execute(t, "db.users.find({a: 1});", "translate", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "db.users.find({a: 1});\n", out)
}

func TestRoot_VerboseLogsToStderr(t *testing.T) {
	cmd := newRootCommand(&RootOptions{})
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(bytes.NewBufferString("SELECT * FROM t;"))
	cmd.SetArgs([]string{"translate", "-v", "--from", "sql", "--to", "doc"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "db.t.find({});\n", out.String())
	assert.Contains(t, errOut.String(), "msg=parsed")
	assert.Contains(t, errOut.String(), "Translating relational -> document")
}
