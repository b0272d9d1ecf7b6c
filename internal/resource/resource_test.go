package resource

import (
	"context"
	"errors"
	"testing"

	"storekit/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profileState struct {
	Theme   string
	Profile Resource[string]
}

var profileLens = Lens[profileState, string]{
	Get: func(s profileState) Resource[string] { return s.Profile },
	Set: func(s profileState, r Resource[string]) profileState {
		s.Profile = r
		return s
	},
}

func TestLoad_Success(t *testing.T) {
	s := store.New(profileState{Theme: "dark", Profile: Idle[string]()})

	var statuses []Status
	s.Subscribe(func(next, prev profileState) {
		statuses = append(statuses, next.Profile.Status)
	})

	err := Load(context.Background(), s, profileLens, func(ctx context.Context) (string, error) {
		assert.True(t, s.GetState().Profile.Loading(), "fetch must run after loading is committed")
		return "ada", nil
	})
	require.NoError(t, err)

	assert.Equal(t, []Status{StatusLoading, StatusReady}, statuses)
	assert.Equal(t, profileState{
		Theme:   "dark",
		Profile: Resource[string]{Status: StatusReady, Data: "ada"},
	}, s.GetState())
}

func TestLoad_FailureBecomesState(t *testing.T) {
	s := store.New(profileState{Profile: Resource[string]{Status: StatusReady, Data: "old"}})
	errOffline := errors.New("network unreachable")

	err := Load(context.Background(), s, profileLens, func(ctx context.Context) (string, error) {
		return "", errOffline
	})

	assert.ErrorIs(t, err, errOffline)

	got := s.GetState().Profile
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "network unreachable", got.Err)
	assert.Equal(t, "old", got.Data, "previous data survives a failed reload")
}

func TestLoad_RetryClearsError(t *testing.T) {
	s := store.New(profileState{Profile: Resource[string]{Status: StatusFailed, Err: "earlier"}})

	require.NoError(t, Load(context.Background(), s, profileLens, func(ctx context.Context) (string, error) {
		assert.Empty(t, s.GetState().Profile.Err)
		return "fresh", nil
	}))
	assert.Equal(t, Resource[string]{Status: StatusReady, Data: "fresh"}, s.GetState().Profile)
}

func TestLoad_StoreErrorReturned(t *testing.T) {
	errReadOnly := errors.New("read only")
	s := store.New(profileState{}, store.WithMiddleware(func(next store.Commit[profileState]) store.Commit[profileState] {
		return func(prev, candidate profileState) (profileState, error) {
			return prev, errReadOnly
		}
	}))

	fetched := false
	err := Load(context.Background(), s, profileLens, func(ctx context.Context) (string, error) {
		fetched = true
		return "x", nil
	})

	assert.Same(t, errReadOnly, err)
	assert.False(t, fetched)
}
