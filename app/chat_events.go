package firmchat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firmdesk/firmchat/core"
)

// JoinRoomHandler subscribes the dispatching session to a room. A session may
// join its own personal room and the rooms of groups it is a member of;
// anything else is dropped. The join is idempotent, so the widget can replay
// its join sequence on every reconnect without bookkeeping.
func (app *App) JoinRoomHandler(ctx context.Context, e *core.Event) error {
	var room string
	if err := json.Unmarshal(e.Payload, &room); err != nil {
		return fmt.Errorf("unmarshal join_room payload: %w", err)
	}

	switch {
	case room == core.PersonalRoom(e.Dispatcher):
		app.registry.Join(e.Session, room)
	case strings.HasPrefix(room, "group_"):
		group := core.ID(strings.TrimPrefix(room, "group_"))
		ok, err := app.userStore.IsGroupMember(ctx, group, e.Dispatcher)
		if err != nil {
			return fmt.Errorf("IsGroupMember: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: user %s, group %s", core.ErrNotAMember, e.Dispatcher, group)
		}
		app.registry.Join(e.Session, room)
	default:
		return fmt.Errorf("join_room: %s is not a room of user %s", room, e.Dispatcher)
	}
	return nil
}

// LeaveRoomHandler unsubscribes the dispatching session from a room. The
// leave is unconditional: leaving a room the session never joined, or was
// denied joining, is a no-op rather than an error.
func (app *App) LeaveRoomHandler(ctx context.Context, e *core.Event) error {
	var room string
	if err := json.Unmarshal(e.Payload, &room); err != nil {
		return fmt.Errorf("unmarshal leave_room payload: %w", err)
	}
	app.registry.Leave(e.Session, room)
	return nil
}
