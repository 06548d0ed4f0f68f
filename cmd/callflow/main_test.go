package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisadapter "github.com/aretw0/callflow/pkg/adapters/redis"
)

const menuScript = `Step menu
  Speak "Say bill or agent"
  Listen 5
  Branch "bill" billing
  Default menu
Step billing
  Speak "You owe " + $amount
  Exit
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func scriptFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "menu.cf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "callflow version 0.1.0")
}

func TestCompileCommand(t *testing.T) {
	path := scriptFile(t, menuScript+"  Bogus 1\n")

	out, err := execute(t, "compile", path)
	require.NoError(t, err)
	assert.Contains(t, out, "[unknown_instruction]")
	assert.Contains(t, out, `2 steps, main "menu", 1 branch keywords, variables [amount]`)
}

func TestValidateCommand(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		path := scriptFile(t, menuScript)
		out, err := execute(t, "validate", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Graph is valid!")
	})

	t.Run("Dangling target", func(t *testing.T) {
		path := scriptFile(t, "Step menu\n  Listen 5\n  Default nowhere\n")
		out, err := execute(t, "validate", path)
		assert.ErrorIs(t, err, errInvalidFlow)
		assert.Contains(t, out, "[dangling_target]")
	})
}

func TestGraphCommand(t *testing.T) {
	path := scriptFile(t, menuScript)
	out, err := execute(t, "graph", path)
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "billing")
}

func TestTranscriptCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	mr := miniredis.RunT(t)
	t.Setenv("CALLFLOW_REDIS_ADDR", mr.Addr())

	rec := redisadapter.New(mr.Addr(), "", 0)
	ctx := context.Background()
	require.NoError(t, rec.Append(ctx, "s-1", redisadapter.Entry{
		At:   time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC),
		Role: redisadapter.RoleFlow,
		Text: "Say bill or agent",
	}))
	require.NoError(t, rec.Close())

	out, err := execute(t, "transcript", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "- s-1")

	out, err = execute(t, "transcript", "show", "s-1")
	require.NoError(t, err)
	assert.Contains(t, out, "09:30:00 flow   Say bill or agent")

	_, err = execute(t, "transcript", "rm", "s-1")
	require.NoError(t, err)

	out, err = execute(t, "transcript", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "No transcripts found.")
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"amount=10", "plan = gold=plus"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"amount": "10", "plan": " gold=plus"}, vars)

	_, err = parseVars([]string{"novalue"})
	assert.Error(t, err)
}
