package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	rip_stream "github.com/alanbriolat/rip-stream"
	"github.com/alanbriolat/rip-stream/internal/config"
)

// parseArgs runs the command line through the real flag set and returns the merged configuration.
func parseArgs(t *testing.T, args ...string) (*config.Config, error) {
	t.Setenv("RIPSTREAM_CONFIG", "")
	t.Setenv("RIPSTREAM_NOTIFY_ENABLED", "")
	var cfg *config.Config
	app := &cli.App{
		Name:  "rip-stream",
		Flags: flags(),
		Action: func(c *cli.Context) (err error) {
			cfg, err = loadConfig(c)
			return err
		},
	}
	err := app.Run(append([]string{"rip-stream"}, args...))
	return cfg, err
}

func TestFlags_Notify(t *testing.T) {
	assert := assert_.New(t)

	cfg, err := parseArgs(t, "S01E01")
	require.NoError(t, err)
	assert.True(cfg.Notify.Enabled)

	cfg, err = parseArgs(t, "--no-notify", "S01E01")
	require.NoError(t, err)
	assert.False(cfg.Notify.Enabled)

	cfg, err = parseArgs(t, "--notify=false", "S01E01")
	require.NoError(t, err)
	assert.False(cfg.Notify.Enabled)

	cfg, err = parseArgs(t, "--notification_level", "2", "S01E01")
	require.NoError(t, err)
	assert.Equal(2, cfg.Notify.Priority)

	_, err = parseArgs(t, "--notification_level", "3", "S01E01")
	assert.ErrorIs(err, rip_stream.ErrConfiguration)
}

func TestFlags_Overrides(t *testing.T) {
	assert := assert_.New(t)
	cfg, err := parseArgs(t,
		"--output_dir", "/videos",
		"--concurrency", "4",
		"--retries", "2",
		"--container", ".mkv",
		"--format", "matroska",
		"--no-resume",
		"--cleanup",
		"S01E01",
	)
	require.NoError(t, err)
	assert.Equal("/videos", cfg.OutputDir)
	assert.Equal(4, cfg.Concurrency)
	assert.Equal(2, cfg.Retries)
	assert.Equal(".mkv", cfg.Container)
	assert.Equal("matroska", cfg.Format)
	assert.False(cfg.Resume)
	assert.True(cfg.Cleanup)
}

func TestExitStatus(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal(0, exitStatus(nil))
	assert.Equal(2, exitStatus(rip_stream.ErrEmptyInput))
	assert.Equal(2, exitStatus(fmt.Errorf("%w: output_name: must not be empty", rip_stream.ErrConfiguration)))
	assert.Equal(130, exitStatus(fmt.Errorf("acquisition interrupted: %w", context.Canceled)))
	assert.Equal(1, exitStatus(&rip_stream.TranscodeError{Output: "video.mp4", Err: errors.New("exit status 1")}))
}
