package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/plsago"
	"github.com/hupe1980/plsago/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pairs = "% 2 2\n0 0 5\n0 1 3\n1 0 2\n1 1 10\n"

func writeInput(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pairs.txt"), []byte(pairs), 0o644))
	return dir
}

func TestRunEndToEnd(t *testing.T) {
	dir := writeInput(t)
	var stderr bytes.Buffer
	code := runWithOutput(context.Background(), []string{
		"--prefix", dir,
		"--cooccur", "pairs.txt",
		"--text",
		"--base", "out/model",
		"--clusters", "2",
		"--maxiter", "20",
		"--seed", "42",
		"--snapshot", "5",
		"--workers", "2",
		"--history", filepath.Join(dir, "history.db"),
	}, &stderr)
	require.Equal(t, 0, code, stderr.String())

	data, err := os.ReadFile(filepath.Join(dir, "out", "model.txt"))
	require.NoError(t, err)
	m, err := output.Decode(data)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m.Sum(), 1e-6)

	assert.FileExists(t, filepath.Join(dir, "out", "model.0.txt"))
	assert.FileExists(t, filepath.Join(dir, "out", "model.1.txt"))
	assert.FileExists(t, filepath.Join(dir, "out", "model.summary.json"))
	assert.FileExists(t, filepath.Join(dir, "history.db"))
}

func TestRunNoOutput(t *testing.T) {
	dir := writeInput(t)
	var stderr bytes.Buffer
	code := runWithOutput(context.Background(), []string{
		"--prefix", dir, "--cooccur", "pairs.txt", "--text", "--nooutput",
		"--clusters", "2", "--maxiter", "5", "--seed", "1",
	}, &stderr)
	require.Equal(t, 0, code, stderr.String())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunInvalidConfig(t *testing.T) {
	dir := writeInput(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing cooccur", []string{"--base", "m"}},
		{"missing base", []string{"--cooccur", "pairs.txt"}},
		{"zero clusters", []string{"--cooccur", "pairs.txt", "--base", "m", "--clusters", "0"}},
		{"zero iterations", []string{"--cooccur", "pairs.txt", "--base", "m", "--maxiter", "0"}},
		{"too many clusters", []string{"--cooccur", "pairs.txt", "--base", "m", "--clusters", "1000"}},
		{"bad compression", []string{"--cooccur", "pairs.txt", "--base", "m", "--compression", "gzip"}},
		{"bad store", []string{"--cooccur", "pairs.txt", "--base", "m", "--store", "ftp"}},
		{"unknown flag", []string{"--frobnicate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			code := runWithOutput(context.Background(), append([]string{"--prefix", dir}, tt.args...), &stderr)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr.String(), "Usage:")
		})
	}
}

func TestRunMissingInput(t *testing.T) {
	var stderr bytes.Buffer
	code := runWithOutput(context.Background(), []string{
		"--prefix", t.TempDir(), "--cooccur", "absent.bin", "--base", "m",
	}, &stderr)
	assert.Equal(t, 1, code)
	assert.NotContains(t, stderr.String(), "Usage:")
}

func TestConfigFile(t *testing.T) {
	dir := writeInput(t)
	cfgPath := filepath.Join(dir, "plsa.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
clusters: 7
max_iterations: 12
seed: 5
cooccur: pairs.txt
base: from-file
peers: [a:1, b:2]
`), 0o644))

	s := DefaultSettings()
	cmd := newRootCmd(&s, &bytes.Buffer{})
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgPath, "--clusters", "3", "--peers", "x:1"}))
	require.NoError(t, cmd.PreRunE(cmd, nil))

	assert.Equal(t, uint32(3), s.NumClusters, "flag wins over file")
	assert.Equal(t, uint32(12), s.MaxIterations)
	assert.Equal(t, uint64(5), s.Seed)
	assert.Equal(t, "from-file", s.Base)
	assert.Equal(t, []string{"x:1"}, s.Peers)
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	s.Cooccur, s.Base = "in", "out"
	require.NoError(t, s.Validate())

	s.Peers = []string{"a:1", "b:2"}
	s.Rank = 2
	err := s.Validate()
	assert.ErrorIs(t, err, plsago.ErrInvalidConfig)

	var ce *plsago.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "rank", ce.Field)

	s.Rank = 1
	require.NoError(t, s.Validate())
	assert.Equal(t, 2, s.WorkerCount())

	s.Store = "minio"
	s.Bucket = "b"
	assert.ErrorIs(t, s.Validate(), plsago.ErrInvalidConfig)
}
