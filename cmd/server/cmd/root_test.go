package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantOutput  string
		expectError bool
	}{
		{name: "help flag", args: []string{"--help"}, wantOutput: "eventproxy sits in front of the Luma public API"},
		{name: "short help flag", args: []string{"-h"}, wantOutput: "Available Commands"},
		{name: "invalid flag", args: []string{"--invalid-flag"}, wantOutput: "unknown flag: --invalid-flag", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Contains(t, buf.String(), tt.wantOutput)
		})
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	for _, flag := range []string{"config", "log-level", "log-format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "persistent flag %q", flag)
	}
	for _, flag := range []string{"host", "port", "mcp"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "serve flag %q on root", flag)
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := newRootCommand()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "version", "healthcheck", "events", "templates", "loadtest", "ratelimit"} {
		assert.True(t, names[want], "expected subcommand %q", want)
	}
}

func TestGlobalFlags_LoadConfig(t *testing.T) {
	t.Setenv("LUMA_API_KEY", "test-key")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("LOG_LEVEL", "info")

	flags := &globalFlags{logLevel: "debug", logFormat: "console"}
	cfg, err := flags.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "test-key", cfg.Upstream.APIKey)
}

func TestGlobalFlags_LoadConfigMissingKey(t *testing.T) {
	t.Setenv("LUMA_API_KEY", "")
	_, err := (&globalFlags{}).loadConfig()
	assert.ErrorContains(t, err, "LUMA_API_KEY")
}
