package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/firmdesk/firmchat/core"
)

// ChatAPI is the REST surface of the portal that the chat core calls into
// for persistence, history, identity, and unseen-count bookkeeping.
type ChatAPI interface {
	PersonalHistory(ctx context.Context, peer core.ID) ([]core.Message, error)
	GroupHistory(ctx context.Context, group core.ID) ([]core.Message, error)
	Announcements(ctx context.Context) ([]core.Announcement, error)
	SendPersonal(ctx context.Context, peer core.ID, body string) (*core.Message, error)
	SendGroup(ctx context.Context, group core.ID, body string) (*core.Message, error)
	UnseenCounts(ctx context.Context) (*core.UnseenCounts, error)
	MarkPersonalSeen(ctx context.Context, peer core.ID) error
	MarkGroupSeen(ctx context.Context, group core.ID) error
	Roster(ctx context.Context) ([]core.User, error)
	Groups(ctx context.Context) ([]core.Group, error)
	GroupMembers(ctx context.Context, group core.ID) ([]core.User, error)
	CreateGroup(ctx context.Context, name string, members []core.ID) (core.ID, error)
	CreateAnnouncement(ctx context.Context, title, body string) (*core.Announcement, error)
}

// APIError is a non-2xx response from the portal.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// HTTPChatAPI implements ChatAPI against the portal's REST endpoints.
type HTTPChatAPI struct {
	baseURL string
	token   string
	client  *http.Client
}

type HTTPChatAPIOption func(*HTTPChatAPI)

func WithHTTPClient(c *http.Client) HTTPChatAPIOption {
	return func(a *HTTPChatAPI) {
		a.client = c
	}
}

func NewHTTPChatAPI(baseURL, token string, opts ...HTTPChatAPIOption) *HTTPChatAPI {
	a := &HTTPChatAPI{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *HTTPChatAPI) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := a.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("NewRequestWithContext: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	res, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("client.Do: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		apiErr := &APIError{Status: res.StatusCode}
		var payload struct {
			Err string `json:"error"`
		}
		if err := json.NewDecoder(res.Body).Decode(&payload); err == nil {
			apiErr.Message = payload.Err
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("json.Decoder.Decode: %w", err)
		}
	}
	return nil
}

func (a *HTTPChatAPI) PersonalHistory(ctx context.Context, peer core.ID) ([]core.Message, error) {
	var messages []core.Message
	query := url.Values{"peer_id": {string(peer)}}
	if err := a.do(ctx, http.MethodGet, "/api/messages", query, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (a *HTTPChatAPI) GroupHistory(ctx context.Context, group core.ID) ([]core.Message, error) {
	var messages []core.Message
	query := url.Values{"group_id": {string(group)}}
	if err := a.do(ctx, http.MethodGet, "/api/messages", query, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (a *HTTPChatAPI) Announcements(ctx context.Context) ([]core.Announcement, error) {
	var anns []core.Announcement
	if err := a.do(ctx, http.MethodGet, "/api/announcements", nil, nil, &anns); err != nil {
		return nil, err
	}
	return anns, nil
}

type sendMessagePayload struct {
	Body       string  `json:"message"`
	ReceiverID core.ID `json:"receiver_id,omitempty"`
	GroupID    core.ID `json:"group_id,omitempty"`
}

func (a *HTTPChatAPI) SendPersonal(ctx context.Context, peer core.ID, body string) (*core.Message, error) {
	var msg core.Message
	payload := sendMessagePayload{Body: body, ReceiverID: peer}
	if err := a.do(ctx, http.MethodPost, "/api/messages", nil, payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (a *HTTPChatAPI) SendGroup(ctx context.Context, group core.ID, body string) (*core.Message, error) {
	var msg core.Message
	payload := sendMessagePayload{Body: body, GroupID: group}
	if err := a.do(ctx, http.MethodPost, "/api/messages", nil, payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (a *HTTPChatAPI) UnseenCounts(ctx context.Context) (*core.UnseenCounts, error) {
	var counts core.UnseenCounts
	if err := a.do(ctx, http.MethodGet, "/api/unseen", nil, nil, &counts); err != nil {
		return nil, err
	}
	return &counts, nil
}

func (a *HTTPChatAPI) MarkPersonalSeen(ctx context.Context, peer core.ID) error {
	return a.do(ctx, http.MethodPost, "/api/unseen/personal/"+url.PathEscape(string(peer))+"/seen", nil, nil, nil)
}

func (a *HTTPChatAPI) MarkGroupSeen(ctx context.Context, group core.ID) error {
	return a.do(ctx, http.MethodPost, "/api/unseen/groups/"+url.PathEscape(string(group))+"/seen", nil, nil, nil)
}

func (a *HTTPChatAPI) Roster(ctx context.Context) ([]core.User, error) {
	var users []core.User
	if err := a.do(ctx, http.MethodGet, "/api/users", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (a *HTTPChatAPI) Groups(ctx context.Context) ([]core.Group, error) {
	var groups []core.Group
	if err := a.do(ctx, http.MethodGet, "/api/groups", nil, nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (a *HTTPChatAPI) GroupMembers(ctx context.Context, group core.ID) ([]core.User, error) {
	var users []core.User
	path := "/api/groups/" + url.PathEscape(string(group)) + "/members"
	if err := a.do(ctx, http.MethodGet, path, nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (a *HTTPChatAPI) CreateGroup(ctx context.Context, name string, members []core.ID) (core.ID, error) {
	payload := struct {
		Name    string    `json:"name"`
		Members []core.ID `json:"member_ids"`
	}{Name: name, Members: members}
	var res struct {
		ID core.ID `json:"group_id"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/groups", nil, payload, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

func (a *HTTPChatAPI) CreateAnnouncement(ctx context.Context, title, body string) (*core.Announcement, error) {
	payload := struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}{Title: title, Body: body}
	var ann core.Announcement
	if err := a.do(ctx, http.MethodPost, "/api/announcements", nil, payload, &ann); err != nil {
		return nil, err
	}
	return &ann, nil
}
