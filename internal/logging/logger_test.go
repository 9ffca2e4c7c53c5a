package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestInitJSONWithComponent(t *testing.T) {
	prev, prevLevel := Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	Init(Config{Level: "warning", Format: "json", Output: &buf})
	logger := WithConversation(Component("session"), "conv-1")
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"component":"session"`)
	require.Contains(t, out, `"conversation_id":"conv-1"`)
	require.Contains(t, out, `"message":"shown"`)
}

func TestLevelOfDefaultsToInfo(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, levelOf(""))
	require.Equal(t, zerolog.InfoLevel, levelOf("loud"))
	require.Equal(t, zerolog.DebugLevel, levelOf(" DEBUG "))
	require.Equal(t, zerolog.WarnLevel, levelOf("warning"))
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := WithContext(context.Background(), logger)

	got := FromContext(ctx)
	got.Error().Msg("from ctx")
	require.Contains(t, buf.String(), "from ctx")

	require.Equal(t, Logger, FromContext(context.Background()))
}
