package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()

	require.Equal(t, DefaultEventName, settings.EventName)
	require.Equal(t, DefaultAPIVersion, settings.APIVersion)
	require.Equal(t, DefaultBatchSize, settings.CronBatchSize)
	require.Equal(t, DefaultLogMaxEntries, settings.LogMaxEntries)
	require.True(t, settings.SendSourceURL)
	require.False(t, settings.CronEnabled)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	settings := &Settings{}
	settings.Normalize()

	require.Equal(t, DefaultEventName, settings.EventName)
	require.Equal(t, DefaultAPIVersion, settings.APIVersion)
	require.Equal(t, DefaultBatchSize, settings.CronBatchSize)
	require.Equal(t, DefaultLogMaxEntries, settings.LogMaxEntries)
}

func TestNormalizeClamps(t *testing.T) {
	settings := &Settings{
		EventName:     "Purchase",
		APIVersion:    "v21.0",
		CronBatchSize: 5000,
		LogMaxEntries: 10,
	}
	settings.Normalize()

	require.Equal(t, MaxBatchSize, settings.CronBatchSize)
	require.Equal(t, MinLogMaxEntries, settings.LogMaxEntries)
}

func TestNormalizeKeepsConfiguredValues(t *testing.T) {
	settings := &Settings{
		EventName:     "CompleteRegistration",
		APIVersion:    "v19.0",
		CronBatchSize: 25,
		LogMaxEntries: 100,
	}
	settings.Normalize()

	require.Equal(t, "CompleteRegistration", settings.EventName)
	require.Equal(t, "v19.0", settings.APIVersion)
	require.Equal(t, 25, settings.CronBatchSize)
	require.Equal(t, 100, settings.LogMaxEntries)
}

func TestClampBatchSize(t *testing.T) {
	require.Equal(t, MinBatchSize, ClampBatchSize(0))
	require.Equal(t, MinBatchSize, ClampBatchSize(-10))
	require.Equal(t, 50, ClampBatchSize(50))
	require.Equal(t, MaxBatchSize, ClampBatchSize(MaxBatchSize))
	require.Equal(t, MaxBatchSize, ClampBatchSize(MaxBatchSize+1))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 200))
	require.Equal(t, "exact", Truncate("exact", 5))

	long := strings.Repeat("x", 300)
	got := Truncate(long, 200)
	require.Len(t, got, 200)
	require.True(t, strings.HasSuffix(got, "..."))

	// Degenerate limits leave the message alone.
	require.Equal(t, "abcdef", Truncate("abcdef", 3))
	require.Equal(t, "abcdef", Truncate("abcdef", 0))
}
