package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/cadence/internal/config"
	"github.com/watzon/cadence/internal/dispatch"
	"github.com/watzon/cadence/internal/events"
)

func TestNewHook(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Close()

	hc := config.Default().Hook
	hook, err := newHook(&hc, bus)
	require.NoError(t, err)
	assert.IsType(t, &dispatch.BroadcastHook{}, hook)

	hc.Driver = "webhook"
	hc.Webhook.URL = "http://localhost:9999/dispatch"
	hook, err = newHook(&hc, bus)
	require.NoError(t, err)
	assert.IsType(t, &dispatch.WebhookHook{}, hook)

	hc.Driver = "smoke-signals"
	_, err = newHook(&hc, bus)
	assert.Error(t, err)
}

func TestNewArchiver(t *testing.T) {
	ctx := context.Background()

	ac := config.Default().Retention.Archive
	a, err := newArchiver(ctx, &ac)
	require.NoError(t, err)
	assert.Nil(t, a)

	ac.Enabled = true
	ac.Path = filepath.Join(t.TempDir(), "archive")
	a, err = newArchiver(ctx, &ac)
	require.NoError(t, err)
	assert.NotNil(t, a)
	assert.DirExists(t, ac.Path)

	ac.Driver = "s3"
	_, err = newArchiver(ctx, &ac)
	assert.Error(t, err, "s3 without a bucket")

	ac.Driver = "tape"
	_, err = newArchiver(ctx, &ac)
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	c := config.Default()
	c.DataDir = filepath.Join(t.TempDir(), "data")

	fs, err := openStore(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, fs)
	assert.DirExists(t, filepath.Join(c.DataDir, "scheduled-tasks"))
	assert.DirExists(t, filepath.Join(c.DataDir, "task-executions"))
}

func TestSetupLogging(t *testing.T) {
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
		verbose = false
	})

	var buf bytes.Buffer
	setupLogging(&buf, &config.LoggingConfig{Level: "warn", Format: "json"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	log.Info().Msg("hidden")
	log.Warn().Str("task_id", "t1").Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"task_id":"t1"`)

	verbose = true
	setupLogging(&buf, &config.LoggingConfig{Level: "error", Format: "console"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestRootCommand_TasksList(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "cadence.yaml")
	content := "data_dir: " + filepath.Join(dir, "data") + "\nlogging:\n  format: json\n  level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	prevLogger := log.Logger
	t.Cleanup(func() { log.Logger = prevLogger })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", configPath, "tasks", "list"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		cfgFile = ""
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "No tasks found.")
}

func TestVersion(t *testing.T) {
	assert.Contains(t, Version(), "cadence version ")
}
