package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_Workflow(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("EVENTSEQ_TRAINING_EPOCHS", "5")
	t.Setenv("EVENTSEQ_METRICS_TEXTFILE", filepath.Join(dir, "eventseq.prom"))

	out, err := run(t, "generate", "--samples", "100", "--seed", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 100 records")

	out, err = run(t, "split")
	require.NoError(t, err)
	assert.Equal(t, "train 70, validation 15, test 15\n", out)

	out, err = run(t, "train", "--new")
	require.NoError(t, err)
	assert.Contains(t, out, "committed")

	out, err = run(t, "predict", "-s", "driver:apply|us:sms")
	require.NoError(t, err)
	assert.Contains(t, out, "(p=")

	out, err = run(t, "predict")
	require.NoError(t, err)
	assert.Contains(t, out, "(15 examples)")

	out, err = run(t, "add", "-s", "driver:apply", "-o", "us:sms")
	require.NoError(t, err)
	assert.Contains(t, out, `added "driver:apply" -> "us:sms"`)

	out, err = run(t, "versions", "--json")
	require.NoError(t, err)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	first := rows[0]["version_id"].(string)

	out, err = run(t, "versions", "--version", first)
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    "+first)

	_, err = run(t, "rollback", first)
	require.NoError(t, err)
	out, err = run(t, "versions")
	require.NoError(t, err)
	assert.Contains(t, out, "* "+first[:8])

	out, err = run(t, "replay")
	require.NoError(t, err)
	assert.Contains(t, out, "Summary: 2 total")

	fixture := filepath.Join(dir, "runs.json")
	_, err = run(t, "replay", "--export", fixture)
	require.NoError(t, err)
	out, err = run(t, "replay", "--fixture", fixture, "--min-accuracy", "1.01")
	require.NoError(t, err)
	assert.Contains(t, out, "0 commit, 2 reject")
	assert.Contains(t, out, "fixture mismatch")

	prom, err := os.ReadFile(filepath.Join(dir, "eventseq.prom"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(prom), "eventseq_"), string(prom))
}

func TestCLI_UsageErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	cases := [][]string{
		{"train", "--bogus"},
		{"train", "extra"},
		{"add", "-s", "driver:apply"},
		{"rollback"},
		{"replay", "--fixture", "a.json", "--export", "b.json"},
		{"nosuchcommand"},
	}
	for _, args := range cases {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := run(t, args...)
			var uerr *usageError
			assert.True(t, errors.As(err, &uerr), "expected usage error, got %v", err)
		})
	}
}

func TestCLI_RuntimeErrorIsNotUsage(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := run(t, "predict", "-s", "driver:apply")
	require.Error(t, err)
	var uerr *usageError
	assert.False(t, errors.As(err, &uerr))
	assert.Contains(t, err.Error(), "no active model version")
}
