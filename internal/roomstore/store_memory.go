package roomstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/park285/rps-room-server/internal/rps"
)

// MemoryStore keeps encoded rooms in process. Writers to one room are
// serialized by a per-room lock acquired with the Update timeout; rooms never
// share state because each caller works on its own decoded copy.
type MemoryStore struct {
	opts Options

	mu    sync.Mutex
	docs  map[string][]byte
	locks map[string]chan struct{}
	lobby map[rps.Mode]map[string]time.Time
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:  opts.withDefaults(),
		docs:  make(map[string][]byte),
		locks: make(map[string]chan struct{}),
		lobby: make(map[rps.Mode]map[string]time.Time),
	}
}

func (s *MemoryStore) Create(_ context.Context, room *rps.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[room.ID]; ok {
		return fmt.Errorf("create room: id %s already exists", room.ID)
	}
	s.docs[room.ID] = raw
	s.locks[room.ID] = make(chan struct{}, 1)
	if room.SecondPlayer == nil {
		idx := s.lobby[room.Mode]
		if idx == nil {
			idx = make(map[string]time.Time)
			s.lobby[room.Mode] = idx
		}
		idx[room.ID] = room.CreationTime
	}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*rps.Room, error) {
	s.mu.Lock()
	raw, ok := s.docs[id]
	s.mu.Unlock()
	if !ok {
		return nil, rps.RoomNotFound(id)
	}
	return decodeRoom(raw)
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*rps.Room) error) (*rps.Room, error) {
	s.mu.Lock()
	lock, ok := s.locks[id]
	s.mu.Unlock()
	if !ok {
		return nil, rps.RoomNotFound(id)
	}

	t := time.NewTimer(s.opts.Timeout)
	defer t.Stop()
	select {
	case lock <- struct{}{}:
	case <-t.C:
		return nil, rps.RoomBusy(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-lock }()

	room, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(room); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(room)
	if err != nil {
		return nil, fmt.Errorf("encode room: %w", err)
	}

	s.mu.Lock()
	s.docs[id] = raw
	if room.SecondPlayer != nil {
		delete(s.lobby[room.Mode], id)
	}
	s.mu.Unlock()
	return room, nil
}

func (s *MemoryStore) FindAvailable(_ context.Context, mode rps.Mode, notOlderThan time.Time) ([]*rps.Room, error) {
	type entry struct {
		id string
		at time.Time
	}
	s.mu.Lock()
	var entries []entry
	for id, at := range s.lobby[mode] {
		if at.After(notOlderThan) {
			entries = append(entries, entry{id, at})
		}
	}
	docs := make(map[string][]byte, len(entries))
	for _, e := range entries {
		docs[e.id] = s.docs[e.id]
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].at.Equal(entries[j].at) {
			return entries[i].id < entries[j].id
		}
		return entries[i].at.Before(entries[j].at)
	})
	if int64(len(entries)) > s.opts.FindLimit {
		entries = entries[:s.opts.FindLimit]
	}

	var out []*rps.Room
	for _, e := range entries {
		room, err := decodeRoom(docs[e.id])
		if err != nil {
			return nil, err
		}
		if room.SecondPlayer == nil {
			out = append(out, room)
		}
	}
	return out, nil
}

func (s *MemoryStore) PruneLobby(_ context.Context, mode rps.Mode, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, at := range s.lobby[mode] {
		if at.Before(olderThan) {
			delete(s.lobby[mode], id)
			n++
		}
	}
	return n, nil
}
