package track

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bulletdrop/analytics/pkg/client"
)

func TestScrollTrackerFiresAtThreshold(t *testing.T) {
	rec := newFakeRecorder()
	tracker := NewScrollTracker(rec, client.ContentFile, 42)

	require.False(t, tracker.Observe(0.10))
	require.False(t, tracker.Observe(0.24))
	require.Zero(t, rec.fileViews(42))

	require.True(t, tracker.Observe(0.25))
	require.Equal(t, 1, rec.fileViews(42))
}

func TestScrollTrackerFiresAtMostOnce(t *testing.T) {
	rec := newFakeRecorder()
	tracker := NewScrollTracker(rec, client.ContentFile, 42)

	require.True(t, tracker.Observe(0.5))
	require.False(t, tracker.Observe(0.9))
	require.False(t, tracker.Observe(1.0))
	require.Equal(t, 1, rec.fileViews(42))
	require.True(t, tracker.Fired())
}

func TestScrollTrackerStopDeregisters(t *testing.T) {
	rec := newFakeRecorder()
	tracker := NewScrollTracker(rec, client.ContentProfile, 7)

	tracker.Stop()
	require.False(t, tracker.Observe(0.9))
	require.Zero(t, rec.profileViews(7))
}

func TestScrollTrackerCustomThreshold(t *testing.T) {
	rec := newFakeRecorder()
	tracker := NewScrollTracker(rec, client.ContentFile, 42, WithThreshold(0.5))

	require.False(t, tracker.Observe(0.4))
	require.True(t, tracker.Observe(0.5))
}

func TestScrollTrackerWithoutContentID(t *testing.T) {
	rec := newFakeRecorder()
	tracker := NewScrollTracker(rec, client.ContentFile, 0)

	require.False(t, tracker.Observe(1.0))
	require.Zero(t, rec.fileViews(0))
}
