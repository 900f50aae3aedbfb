package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmdesk/firmchat/core"
)

func TestUnseenRefresh(t *testing.T) {
	api := newMockAPI()
	api.unseen.PersonalChats["bob"] = 2
	api.unseen.GroupChats["g1"] = 5
	store := NewUnseenStore(api, testLogger())

	require.Nil(t, store.Refresh(context.Background()))

	assert.Equal(t, 2, store.Personal("bob"))
	assert.Equal(t, 5, store.Group("g1"))
	assert.Equal(t, 0, store.Personal("carol"))
}

func TestUnseenRefreshFailureKeepsMirror(t *testing.T) {
	api := newMockAPI()
	api.unseen.PersonalChats["bob"] = 2
	store := NewUnseenStore(api, testLogger())
	require.Nil(t, store.Refresh(context.Background()))

	api.mu.Lock()
	api.unseenErr = errors.New("boom")
	api.mu.Unlock()

	assert.NotNil(t, store.Refresh(context.Background()))
	// the last good counts stay displayed
	assert.Equal(t, 2, store.Personal("bob"))
}

func TestMarkSeenZeroesOptimistically(t *testing.T) {
	api := newMockAPI()
	api.unseen.PersonalChats["bob"] = 3
	api.unseen.GroupChats["g1"] = 4
	store := NewUnseenStore(api, testLogger())
	require.Nil(t, store.Refresh(context.Background()))

	store.MarkPersonalSeen(context.Background(), "bob")
	assert.Equal(t, 0, store.Personal("bob"))
	assert.Equal(t, []core.ID{"bob"}, api.markedPersonal)

	store.MarkGroupSeen(context.Background(), "g1")
	assert.Equal(t, 0, store.Group("g1"))
	assert.Equal(t, []core.ID{"g1"}, api.markedGroup)
}

func TestMarkSeenFailureHealsFromServer(t *testing.T) {
	api := newMockAPI()
	api.unseen.PersonalChats["bob"] = 3
	store := NewUnseenStore(api, testLogger())
	require.Nil(t, store.Refresh(context.Background()))

	api.mu.Lock()
	api.markErr = errors.New("boom")
	api.mu.Unlock()

	store.MarkPersonalSeen(context.Background(), "bob")

	// the optimistic zero was healed by re-reading the authoritative counts
	assert.Equal(t, 3, store.Personal("bob"))
}

func TestUnseenCountsCopy(t *testing.T) {
	api := newMockAPI()
	api.unseen.PersonalChats["bob"] = 1
	store := NewUnseenStore(api, testLogger())
	require.Nil(t, store.Refresh(context.Background()))

	counts := store.Counts()
	counts.PersonalChats["bob"] = 99

	assert.Equal(t, 1, store.Personal("bob"))
}
