package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"insight/internal/domain"
)

// MemoryDB is an in-process database backing every store contract. It
// favours clarity over performance and is used by tests and by the server
// when no DATABASE_URL is configured.
//
// RunInTx serialises units of work and restores a snapshot when fn fails,
// which gives the same all-or-nothing outcome as a SQL transaction.
type MemoryDB struct {
	txMu sync.Mutex

	mu     sync.RWMutex
	events map[string]domain.Event
	topics map[uuid.UUID]domain.Topic
	links  map[domain.EventTopicLink]struct{}
	briefs map[time.Time]domain.WeeklyBrief
	clock  func() time.Time
}

// NewMemoryDB creates an empty database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		events: make(map[string]domain.Event),
		topics: make(map[uuid.UUID]domain.Topic),
		links:  make(map[domain.EventTopicLink]struct{}),
		briefs: make(map[time.Time]domain.WeeklyBrief),
		clock:  time.Now,
	}
}

type memorySnapshot struct {
	events map[string]domain.Event
	topics map[uuid.UUID]domain.Topic
	links  map[domain.EventTopicLink]struct{}
	briefs map[time.Time]domain.WeeklyBrief
}

func (db *MemoryDB) snapshot() memorySnapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	s := memorySnapshot{
		events: make(map[string]domain.Event, len(db.events)),
		topics: make(map[uuid.UUID]domain.Topic, len(db.topics)),
		links:  make(map[domain.EventTopicLink]struct{}, len(db.links)),
		briefs: make(map[time.Time]domain.WeeklyBrief, len(db.briefs)),
	}
	for k, v := range db.events {
		s.events[k] = v
	}
	for k, v := range db.topics {
		s.topics[k] = v.Clone()
	}
	for k := range db.links {
		s.links[k] = struct{}{}
	}
	for k, v := range db.briefs {
		s.briefs[k] = v
	}
	return s
}

func (db *MemoryDB) restore(s memorySnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.events, db.topics, db.links, db.briefs = s.events, s.topics, s.links, s.briefs
}

// RunInTx implements TxRunner.
func (db *MemoryDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	if err := fn(ctx); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

// Events returns the event store view.
func (db *MemoryDB) Events() *MemoryEventStore { return &MemoryEventStore{db: db} }

// Topics returns the topic store view.
func (db *MemoryDB) Topics() *MemoryTopicStore { return &MemoryTopicStore{db: db} }

// Links returns the link store view.
func (db *MemoryDB) Links() *MemoryLinkStore { return &MemoryLinkStore{db: db} }

// Briefs returns the brief store view.
func (db *MemoryDB) Briefs() *MemoryBriefStore { return &MemoryBriefStore{db: db} }

type MemoryEventStore struct{ db *MemoryDB }

func (s *MemoryEventStore) Upsert(_ context.Context, event domain.Event) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := s.db.clock()
	if prev, ok := s.db.events[event.ID]; ok {
		event.CreatedAt = prev.CreatedAt
	} else {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	event.Embedding = append([]float32(nil), event.Embedding...)
	s.db.events[event.ID] = event
	return nil
}

func (s *MemoryEventStore) Get(_ context.Context, id string) (domain.Event, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	e, ok := s.db.events[id]
	if !ok {
		return domain.Event{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryEventStore) ListBetween(_ context.Context, start, end time.Time) ([]domain.Event, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	w := domain.Window{Start: start, End: end}
	out := []domain.Event{}
	for _, e := range s.db.events {
		if w.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryEventStore) SetEmbedding(_ context.Context, id string, embedding []float32) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.events[id]
	if !ok {
		return ErrNotFound
	}
	e.Embedding = append([]float32(nil), embedding...)
	e.UpdatedAt = s.db.clock()
	s.db.events[id] = e
	return nil
}

func (s *MemoryEventStore) Counts(_ context.Context) (EventCounts, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var c EventCounts
	for _, e := range s.db.events {
		c.Total++
		switch e.Source {
		case domain.SourceEmail:
			c.Email++
		case domain.SourceMeeting:
			c.Meeting++
		}
	}
	return c, nil
}

type MemoryTopicStore struct{ db *MemoryDB }

func (s *MemoryTopicStore) List(_ context.Context) ([]domain.Topic, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make([]domain.Topic, 0, len(s.db.topics))
	for _, t := range s.db.topics {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryTopicStore) Save(_ context.Context, topics []domain.Topic) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, t := range topics {
		if prev, ok := s.db.topics[t.ID]; ok {
			t.CreatedAt = prev.CreatedAt
		}
		s.db.topics[t.ID] = t.Clone()
	}
	return nil
}

type MemoryLinkStore struct{ db *MemoryDB }

func (s *MemoryLinkStore) Insert(_ context.Context, links []domain.EventTopicLink) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var inserted int
	for _, l := range links {
		if _, ok := s.db.links[l]; ok {
			continue
		}
		s.db.links[l] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (s *MemoryLinkStore) ListForEvents(_ context.Context, eventIDs []string) ([]domain.EventTopicLink, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	want := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		want[id] = struct{}{}
	}
	out := []domain.EventTopicLink{}
	for l := range s.db.links {
		if _, ok := want[l.EventID]; ok {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		return out[i].TopicID.String() < out[j].TopicID.String()
	})
	return out, nil
}

type MemoryBriefStore struct{ db *MemoryDB }

func (s *MemoryBriefStore) Upsert(_ context.Context, brief domain.WeeklyBrief) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := WeekKey(brief.WeekStart)
	now := s.db.clock()
	if prev, ok := s.db.briefs[key]; ok {
		brief.CreatedAt = prev.CreatedAt
	} else {
		brief.CreatedAt = now
	}
	brief.UpdatedAt = now
	brief.WeekStart = key
	s.db.briefs[key] = brief
	return nil
}

func (s *MemoryBriefStore) Get(_ context.Context, weekStart time.Time) (domain.WeeklyBrief, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	b, ok := s.db.briefs[WeekKey(weekStart)]
	if !ok {
		return domain.WeeklyBrief{}, ErrNotFound
	}
	return b, nil
}

// Stores returns every contract backed by db.
func (db *MemoryDB) Stores() Stores {
	return Stores{
		Events: db.Events(),
		Topics: db.Topics(),
		Links:  db.Links(),
		Briefs: db.Briefs(),
		Tx:     db,
	}
}
