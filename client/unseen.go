package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/firmdesk/firmchat/core"
)

// UnseenAPI is the slice of the REST surface the unseen store depends on.
type UnseenAPI interface {
	UnseenCounts(ctx context.Context) (*core.UnseenCounts, error)
	MarkPersonalSeen(ctx context.Context, peer core.ID) error
	MarkGroupSeen(ctx context.Context, group core.ID) error
}

// UnseenStore mirrors the server's unseen counts. Opening a conversation
// zeroes its counter optimistically before the server acknowledges the
// seen-mark; a failed acknowledgement is healed by re-reading the
// authoritative counts rather than by rolling back locally. The displayed
// count can therefore be transiently zero, but never negative, and is
// correct again within one round trip.
type UnseenStore struct {
	mu       sync.RWMutex
	personal map[core.ID]int
	groups   map[core.ID]int
	api      UnseenAPI
	logger   *slog.Logger
}

func NewUnseenStore(api UnseenAPI, logger *slog.Logger) *UnseenStore {
	return &UnseenStore{
		personal: make(map[core.ID]int),
		groups:   make(map[core.ID]int),
		api:      api,
		logger:   logger,
	}
}

// Refresh replaces the mirror wholesale with the authoritative counts.
func (s *UnseenStore) Refresh(ctx context.Context) error {
	counts, err := s.api.UnseenCounts(ctx)
	if err != nil {
		return fmt.Errorf("UnseenCounts: %w", err)
	}

	personal := counts.PersonalChats
	if personal == nil {
		personal = make(map[core.ID]int)
	}
	groups := counts.GroupChats
	if groups == nil {
		groups = make(map[core.ID]int)
	}

	s.mu.Lock()
	s.personal = personal
	s.groups = groups
	s.mu.Unlock()
	return nil
}

// MarkPersonalSeen zeroes the peer's counter, then asks the server to
// acknowledge. Acknowledgement failures are never surfaced: the store
// self-heals with a refresh.
func (s *UnseenStore) MarkPersonalSeen(ctx context.Context, peer core.ID) {
	s.mu.Lock()
	s.personal[peer] = 0
	s.mu.Unlock()

	if err := s.api.MarkPersonalSeen(ctx, peer); err != nil {
		s.logger.Debug(fmt.Sprintf("mark personal seen: %v", err))
		s.heal(ctx)
	}
}

// MarkGroupSeen is the group counterpart of MarkPersonalSeen.
func (s *UnseenStore) MarkGroupSeen(ctx context.Context, group core.ID) {
	s.mu.Lock()
	s.groups[group] = 0
	s.mu.Unlock()

	if err := s.api.MarkGroupSeen(ctx, group); err != nil {
		s.logger.Debug(fmt.Sprintf("mark group seen: %v", err))
		s.heal(ctx)
	}
}

func (s *UnseenStore) heal(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Error("unseen refresh: " + err.Error())
	}
}

// Personal returns the unseen count for a peer.
func (s *UnseenStore) Personal(peer core.ID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.personal[peer]
}

// Group returns the unseen count for a group.
func (s *UnseenStore) Group(group core.ID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups[group]
}

// Counts returns a copy of the mirror.
func (s *UnseenStore) Counts() core.UnseenCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := core.UnseenCounts{
		PersonalChats: make(map[core.ID]int, len(s.personal)),
		GroupChats:    make(map[core.ID]int, len(s.groups)),
	}
	for k, v := range s.personal {
		out.PersonalChats[k] = v
	}
	for k, v := range s.groups {
		out.GroupChats[k] = v
	}
	return out
}
