package firmchat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/firmdesk/firmchat/core"
	"github.com/firmdesk/firmchat/pkg/router"
)

type ChatHandler struct {
	chatStore core.ChatStore
	userStore core.UserStore
	events    *core.EventRouter
}

func NewChatHandler(chatStore core.ChatStore, userStore core.UserStore, events *core.EventRouter) *ChatHandler {
	return &ChatHandler{chatStore: chatStore, userStore: userStore, events: events}
}

func pagination(r *http.Request) (offset, limit int) {
	query := r.URL.Query()
	offset, _ = strconv.Atoi(query.Get("offset"))
	limit, _ = strconv.Atoi(query.Get("limit"))
	return offset, limit
}

// GetMessagesHandler returns the history of one conversation. Exactly one of
// the peer_id and group_id query parameters selects it.
func (h *ChatHandler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	query := r.URL.Query()
	peerID := core.ID(query.Get("peer_id"))
	groupID := core.ID(query.Get("group_id"))
	offset, limit := pagination(r)

	if (peerID == "") == (groupID == "") {
		return router.NewJsonError(http.StatusBadRequest, "exactly one of peer_id and group_id is required")
	}

	var messages []core.Message
	var err error
	if groupID != "" {
		inGroup, err := h.userStore.IsGroupMember(r.Context(), groupID, session.UserID)
		if err != nil {
			return err
		}
		if !inGroup {
			return router.WrapJsonError(http.StatusForbidden, core.ErrNotAMember)
		}
		messages, err = h.chatStore.GroupHistory(r.Context(), groupID, offset, limit)
		if err != nil {
			return err
		}
	} else {
		messages, err = h.chatStore.PersonalHistory(r.Context(), session.UserID, peerID, offset, limit)
		if err != nil {
			return err
		}
	}

	if messages == nil {
		messages = []core.Message{}
	}

	json.NewEncoder(w).Encode(messages)
	return nil
}

type SendMessagePayload struct {
	Body       string  `json:"message"`
	ReceiverID core.ID `json:"receiver_id"`
	GroupID    core.ID `json:"group_id"`
}

// SendMessageHandler persists the message, then fans it out. A group message
// goes to the group's room. A personal message goes to both the receiver's
// and the sender's personal rooms, so every session of the sender renders its
// own message through the same path as everyone else.
func (h *ChatHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	var payload SendMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return router.NewJsonError(http.StatusBadRequest, "invalid input")
	}
	r.Body.Close()

	input := core.MessageCreateInput{
		SenderID:   session.UserID,
		Body:       payload.Body,
		GroupID:    payload.GroupID,
		ReceiverID: payload.ReceiverID,
	}
	if err := input.Validate(); err != nil {
		return router.NewJsonError(http.StatusBadRequest, "invalid input")
	}

	message, err := h.chatStore.SaveMessage(r.Context(), input)
	if err != nil {
		if errors.Is(err, core.ErrInvalidUser) || errors.Is(err, core.ErrInvalidGroup) || errors.Is(err, core.ErrInvalidMessage) {
			return router.WrapJsonError(http.StatusBadRequest, err)
		}
		if errors.Is(err, core.ErrNotAMember) {
			return router.WrapJsonError(http.StatusForbidden, err)
		}
		return err
	}

	if message.GroupID != "" {
		h.events.EmitToRoom(core.ReceiveMessageEvent, message, core.GroupRoom(message.GroupID))
	} else {
		h.events.EmitToRoom(core.ReceiveMessageEvent, message,
			core.PersonalRoom(message.ReceiverID), core.PersonalRoom(message.SenderID))
	}

	json.NewEncoder(w).Encode(message)
	return nil
}

func (h *ChatHandler) GetAnnouncementsHandler(w http.ResponseWriter, r *http.Request) error {
	offset, limit := pagination(r)
	announcements, err := h.chatStore.Announcements(r.Context(), offset, limit)
	if err != nil {
		return err
	}

	if announcements == nil {
		announcements = []core.Announcement{}
	}

	json.NewEncoder(w).Encode(announcements)
	return nil
}

type CreateAnnouncementPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CreateAnnouncementHandler posts a firm-wide announcement. Only admins may
// post; the announcement fans out to every connected user regardless of room
// membership.
func (h *ChatHandler) CreateAnnouncementHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	if session.Role != core.RoleAdmin {
		return router.NewJsonError(http.StatusForbidden, "only admins can post announcements")
	}

	var payload CreateAnnouncementPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return router.NewJsonError(http.StatusBadRequest, "invalid input")
	}
	r.Body.Close()

	input := core.AnnouncementCreateInput{
		AuthorID: session.UserID,
		Title:    payload.Title,
		Body:     payload.Body,
	}
	if err := input.Validate(); err != nil {
		return router.NewJsonError(http.StatusBadRequest, "invalid input")
	}

	announcement, err := h.chatStore.CreateAnnouncement(r.Context(), input)
	if err != nil {
		return err
	}

	users, err := h.userStore.GetUsers(r.Context())
	if err == nil {
		ids := make([]core.ID, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		h.events.EmitTo(core.ReceiveAnnouncementEvent, announcement, ids...)
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(announcement)
	return nil
}

func (h *ChatHandler) GetUnseenHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	counts, err := h.chatStore.UnseenCounts(r.Context(), session.UserID)
	if err != nil {
		return err
	}
	json.NewEncoder(w).Encode(counts)
	return nil
}

func (h *ChatHandler) MarkPersonalSeenHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	peerID := core.ID(r.PathValue("peerID"))
	if err := h.chatStore.MarkPersonalSeen(r.Context(), session.UserID, peerID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *ChatHandler) MarkGroupSeenHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	groupID := core.ID(r.PathValue("groupID"))

	inGroup, err := h.userStore.IsGroupMember(r.Context(), groupID, session.UserID)
	if err != nil {
		return err
	}
	if !inGroup {
		return router.WrapJsonError(http.StatusForbidden, core.ErrNotAMember)
	}

	if err := h.chatStore.MarkGroupSeen(r.Context(), session.UserID, groupID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
