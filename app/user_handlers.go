package firmchat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/firmdesk/firmchat/core"
	"github.com/firmdesk/firmchat/pkg/router"
)

type UserHandler struct {
	userStore core.UserStore
}

func NewUserHandler(userStore core.UserStore) *UserHandler {
	return &UserHandler{userStore: userStore}
}

// GetUsersHandler returns the full roster. The widget resolves sender
// identity against it.
func (h *UserHandler) GetUsersHandler(w http.ResponseWriter, r *http.Request) error {
	users, err := h.userStore.GetUsers(r.Context())
	if err != nil {
		return err
	}
	if users == nil {
		users = []core.User{}
	}
	json.NewEncoder(w).Encode(users)
	return nil
}

func (h *UserHandler) GetMeHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	user, err := h.userStore.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return router.NewJsonError(http.StatusNotFound, "user not found")
	}
	json.NewEncoder(w).Encode(user)
	return nil
}

// CreateUserHandler seeds a roster entry. The portal's identity service is
// the source of truth for accounts; this endpoint mirrors them into the chat
// roster and is restricted to admins.
func (h *UserHandler) CreateUserHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	if session.Role != core.RoleAdmin {
		return router.NewJsonError(http.StatusForbidden, "only admins can create users")
	}

	var input core.UserCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		return router.NewJsonError(http.StatusBadRequest, "invalid input")
	}
	r.Body.Close()

	if err := input.Validate(); err != nil {
		return router.NewJsonError(http.StatusBadRequest, "invalid input")
	}

	user, err := h.userStore.CreateUser(r.Context(), input)
	if err != nil {
		return err
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
	return nil
}

// GetGroupsHandler returns the groups the requesting user is a member of.
func (h *UserHandler) GetGroupsHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	groups, err := h.userStore.GetUserGroups(r.Context(), session.UserID)
	if err != nil {
		return err
	}
	if groups == nil {
		groups = []core.Group{}
	}
	json.NewEncoder(w).Encode(groups)
	return nil
}

type CreateGroupPayload struct {
	Name    string    `json:"name"`
	Members []core.ID `json:"member_ids"`
}

type CreateGroupResponse struct {
	ID core.ID `json:"group_id"`
}

func (h *UserHandler) CreateGroupHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	var payload CreateGroupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return router.NewJsonError(http.StatusBadRequest, "invalid input")
	}
	r.Body.Close()

	id, err := h.userStore.CreateGroup(r.Context(), payload.Name, session.UserID, payload.Members...)
	if err != nil {
		if errors.Is(err, core.ErrInvalidUser) || errors.Is(err, core.ErrInsufficientMembers) {
			return router.WrapJsonError(http.StatusBadRequest, err)
		}
		return err
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateGroupResponse{ID: id})
	return nil
}

// GetGroupMembersHandler returns the members of a group. An unknown group
// yields an empty list so the widget's header rendering degrades instead of
// erroring.
func (h *UserHandler) GetGroupMembersHandler(w http.ResponseWriter, r *http.Request) error {
	groupID := core.ID(r.PathValue("groupID"))
	members, err := h.userStore.GetGroupMembers(r.Context(), groupID)
	if err != nil {
		return err
	}
	if members == nil {
		members = []core.User{}
	}
	json.NewEncoder(w).Encode(members)
	return nil
}
