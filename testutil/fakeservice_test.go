package testutil

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

func newClient(f *FakeService) *fissure.Client {
	return fissure.NewClient(f.URL(), nil, slog.New(slog.DiscardHandler), "")
}

func TestFakeService_ImmediateFilters(t *testing.T) {
	f := NewFakeService(
		fissure.Fissure{ID: "a", MissionType: "Survival"},
		fissure.Fissure{ID: "b", MissionType: "Spy", IsHard: true},
		fissure.Fissure{ID: "c", MissionType: "Spy"},
	)
	defer f.Close()

	snap, err := newClient(f).Immediate(context.Background(), fissure.NewCriteria(fissure.HardModeExclude, "Spy"))
	require.NoError(t, err)

	assert.Equal(t, []string{"c"}, snap.IDs)

	reqs := f.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/fissures/immediate", reqs[0].Path)
	assert.Equal(t, []string{"Spy"}, reqs[0].MissionTypes)
	assert.Equal(t, "false", reqs[0].IsHard)
}

func TestFakeService_PollAnswersAtOnceWhenStale(t *testing.T) {
	f := NewFakeService(fissure.Fissure{ID: "a"}, fissure.Fissure{ID: "b"})
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := newClient(f).Poll(ctx, fissure.Criteria{}, []string{"a"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, snap.IDs)
}

func TestFakeService_PollHeldUntilSet(t *testing.T) {
	f := NewFakeService(fissure.Fissure{ID: "a"}, fissure.Fissure{ID: "b"})
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan *fissure.Snapshot, 1)

	go func() {
		snap, err := newClient(f).Poll(ctx, fissure.Criteria{}, []string{"b", "a"})
		if err == nil {
			done <- snap
		}
	}()

	require.Eventually(t, func() bool { return len(f.Requests()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"b", "a"}, f.Requests()[0].KnownIDs)

	select {
	case <-done:
		t.Fatal("poll answered while data was current")
	case <-time.After(50 * time.Millisecond):
	}

	f.Set(fissure.Fissure{ID: "a"}, fissure.Fissure{ID: "b"}, fissure.Fissure{ID: "z"})

	select {
	case snap := <-done:
		assert.Equal(t, []string{"a", "b", "z"}, snap.IDs)
	case <-time.After(2 * time.Second):
		t.Fatal("poll not released by Set")
	}
}

func TestFakeService_HoldTimeoutAnswersUnchanged(t *testing.T) {
	f := NewFakeService(fissure.Fissure{ID: "a"})
	defer f.Close()

	f.Hold = 20 * time.Millisecond

	snap, err := newClient(f).Poll(context.Background(), fissure.Criteria{}, []string{"a"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, snap.IDs)
}

func TestFakeService_FailNext(t *testing.T) {
	f := NewFakeService()
	defer f.Close()

	f.FailNext(http.StatusServiceUnavailable)

	_, err := newClient(f).Immediate(context.Background(), fissure.Criteria{})
	require.Error(t, err)

	var apiErr *fissure.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

	_, err = newClient(f).Immediate(context.Background(), fissure.Criteria{})
	require.NoError(t, err)
}
