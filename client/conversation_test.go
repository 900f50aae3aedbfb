package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmdesk/firmchat/core"
)

type controllerFixture struct {
	ctrl     *Controller
	api      *mockAPI
	viewport *Viewport
	emitter  *recordingEmitter
	unseen   *UnseenStore
	ctx      context.Context
}

func newControllerFixture(t *testing.T) *controllerFixture {
	api := newMockAPI()
	state := &stubState{
		self: core.User{ID: "self", Name: "Me"},
		roster: map[core.ID]core.User{
			"bob": {ID: "bob", Name: "Bob"},
		},
	}
	viewport := NewViewport()
	emitter := &recordingEmitter{}
	unseen := NewUnseenStore(api, testLogger())
	ctrl := NewController(state, viewport, emitter, unseen, api, testLogger())
	return &controllerFixture{
		ctrl:     ctrl,
		api:      api,
		viewport: viewport,
		emitter:  emitter,
		unseen:   unseen,
		ctx:      context.Background(),
	}
}

func TestSelectPersonalConversation(t *testing.T) {
	f := newControllerFixture(t)
	f.api.personalHistory["bob"] = []core.Message{
		{ID: "m1", SenderID: "bob", ReceiverID: "self", Body: "hi"},
		{ID: "m2", SenderID: "self", ReceiverID: "bob", Body: "hello"},
	}

	f.ctrl.Select(f.ctx, PersonalConversation("bob"))

	assert.Equal(t, PersonalConversation("bob"), f.ctrl.Selected())
	assert.Equal(t, []core.ID{"bob"}, f.api.markedPersonal)
	require.Equal(t, 2, f.viewport.Len())
	messages := f.viewport.Messages()
	assert.Equal(t, "Bob", messages[0].SenderName)
	assert.True(t, messages[1].Self)
	// a personal conversation needs no room transition
	assert.Empty(t, f.emitter.recorded())
}

func TestSelectRoomTransitions(t *testing.T) {

	t.Run("personal to group joins", func(t *testing.T) {
		f := newControllerFixture(t)
		f.ctrl.Select(f.ctx, PersonalConversation("bob"))
		f.ctrl.Select(f.ctx, GroupConversation("g1"))

		emits := f.emitter.recorded()
		require.Len(t, emits, 1)
		assert.Equal(t, core.JoinRoomEvent, emits[0].eventType)
		assert.Equal(t, "group_g1", emits[0].payload)
	})

	t.Run("group to group leaves then joins", func(t *testing.T) {
		f := newControllerFixture(t)
		f.ctrl.Select(f.ctx, GroupConversation("g1"))
		f.ctrl.Select(f.ctx, GroupConversation("g2"))

		emits := f.emitter.recorded()
		require.Len(t, emits, 3)
		assert.Equal(t, core.JoinRoomEvent, emits[0].eventType)
		assert.Equal(t, "group_g1", emits[0].payload)
		assert.Equal(t, core.LeaveRoomEvent, emits[1].eventType)
		assert.Equal(t, "group_g1", emits[1].payload)
		assert.Equal(t, core.JoinRoomEvent, emits[2].eventType)
		assert.Equal(t, "group_g2", emits[2].payload)
	})

	t.Run("group to personal leaves unconditionally", func(t *testing.T) {
		f := newControllerFixture(t)
		f.ctrl.Select(f.ctx, GroupConversation("g1"))
		f.ctrl.Select(f.ctx, PersonalConversation("bob"))

		emits := f.emitter.recorded()
		require.Len(t, emits, 2)
		assert.Equal(t, core.LeaveRoomEvent, emits[1].eventType)
		assert.Equal(t, "group_g1", emits[1].payload)
	})

	t.Run("reselecting the open group does not churn the room", func(t *testing.T) {
		f := newControllerFixture(t)
		f.ctrl.Select(f.ctx, GroupConversation("g1"))
		f.ctrl.Select(f.ctx, GroupConversation("g1"))

		emits := f.emitter.recorded()
		require.Len(t, emits, 1)
		assert.Equal(t, core.JoinRoomEvent, emits[0].eventType)
	})
}

func TestSelectGroupMarksSeen(t *testing.T) {
	f := newControllerFixture(t)
	f.ctrl.Select(f.ctx, GroupConversation("g1"))
	assert.Equal(t, []core.ID{"g1"}, f.api.markedGroup)
	assert.Empty(t, f.api.markedPersonal)
}

func TestSelectAnnouncements(t *testing.T) {
	f := newControllerFixture(t)
	f.api.announcements = []core.Announcement{
		{ID: "a1", AuthorID: "bob", Title: "Office closed", Body: "Friday"},
	}

	f.ctrl.Select(f.ctx, AnnouncementsConversation())

	require.Equal(t, 1, f.viewport.Len())
	got := f.viewport.Messages()[0]
	assert.Equal(t, "Office closed", got.Title)
	assert.Equal(t, "Friday", got.Body)
	// the feed is read-only, nothing gets marked seen
	assert.Empty(t, f.api.markedPersonal)
	assert.Empty(t, f.api.markedGroup)
}

func TestSelectClearsPreviousConversation(t *testing.T) {
	f := newControllerFixture(t)
	f.api.personalHistory["bob"] = []core.Message{
		{ID: "m1", SenderID: "bob", ReceiverID: "self", Body: "hi"},
	}
	f.ctrl.Select(f.ctx, PersonalConversation("bob"))
	require.Equal(t, 1, f.viewport.Len())

	f.ctrl.Select(f.ctx, PersonalConversation("carol"))
	assert.Zero(t, f.viewport.Len())
}

func TestSelectComposingSuppressesLoad(t *testing.T) {
	f := newControllerFixture(t)
	f.api.personalHistory["bob"] = []core.Message{
		{ID: "m1", SenderID: "bob", ReceiverID: "self", Body: "hi"},
	}
	f.ctrl.Select(f.ctx, PersonalConversation("bob"))

	f.ctrl.Select(f.ctx, ComposingConversation())

	assert.Zero(t, f.viewport.Len())
	assert.Empty(t, f.viewport.Err())
}

func TestLoadFailureAndReload(t *testing.T) {
	f := newControllerFixture(t)
	f.api.mu.Lock()
	f.api.historyErr = errors.New("boom")
	f.api.mu.Unlock()

	f.ctrl.Select(f.ctx, PersonalConversation("bob"))

	assert.Zero(t, f.viewport.Len())
	assert.Equal(t, "failed to load messages", f.viewport.Err())

	f.api.mu.Lock()
	f.api.historyErr = nil
	f.api.personalHistory["bob"] = []core.Message{
		{ID: "m1", SenderID: "bob", ReceiverID: "self", Body: "hi"},
	}
	f.api.mu.Unlock()

	f.ctrl.Reload(f.ctx)

	assert.Equal(t, 1, f.viewport.Len())
	assert.Empty(t, f.viewport.Err())
}

func TestStaleHistoryResponseIsDiscarded(t *testing.T) {
	f := newControllerFixture(t)
	f.api.personalHistory["bob"] = []core.Message{
		{ID: "m1", SenderID: "bob", ReceiverID: "self", Body: "old"},
	}
	f.api.groupHistory["g1"] = []core.Message{
		{ID: "m2", SenderID: "bob", GroupID: "g1", Body: "new"},
	}

	f.ctrl.Select(f.ctx, PersonalConversation("bob")) // epoch 1
	f.ctrl.Select(f.ctx, GroupConversation("g1"))     // epoch 2

	// a response for the first selection that arrives after the switch
	f.ctrl.load(f.ctx, PersonalConversation("bob"), 1)

	require.Equal(t, 1, f.viewport.Len())
	assert.Equal(t, "new", f.viewport.Messages()[0].Body)
}
