package conversation

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/digkill/NabiBot/internal/models"
)

type entry struct {
	phone     string
	turns     []models.Turn
	lastImage string
	touched   time.Time
}

// MemoryStore is the process-local fallback: an LRU over phones, bounded by
// maxUsers, whose entries also expire after ttl without activity.
type MemoryStore struct {
	mu       sync.Mutex
	maxTurns int
	maxUsers int
	ttl      time.Duration
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

func NewMemoryStore(maxTurns, maxUsers int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		maxTurns: maxTurns,
		maxUsers: maxUsers,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Len reports how many phones are currently held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *MemoryStore) History(_ context.Context, phone string) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(phone)
	if e == nil {
		return nil, nil
	}
	out := make([]models.Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, phone string, turns ...models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.upsert(phone)
	e.turns = append(e.turns, turns...)
	if over := len(e.turns) - s.maxTurns; s.maxTurns > 0 && over > 0 {
		e.turns = append([]models.Turn(nil), e.turns[over:]...)
	}
	return nil
}

func (s *MemoryStore) LastImage(_ context.Context, phone string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.lookup(phone); e != nil {
		return e.lastImage, nil
	}
	return "", nil
}

func (s *MemoryStore) SetLastImage(_ context.Context, phone, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(phone).lastImage = url
	return nil
}

// lookup returns the live entry for phone and marks it recently used.
// Caller holds mu.
func (s *MemoryStore) lookup(phone string) *entry {
	el, ok := s.items[phone]
	if !ok {
		return nil
	}
	e := el.Value.(*entry)
	if s.expired(e) {
		s.remove(el)
		return nil
	}
	e.touched = s.now()
	s.order.MoveToFront(el)
	return e
}

func (s *MemoryStore) upsert(phone string) *entry {
	if e := s.lookup(phone); e != nil {
		return e
	}
	e := &entry{phone: phone, touched: s.now()}
	s.items[phone] = s.order.PushFront(e)
	s.evict()
	return e
}

// evict drops expired entries from the tail, then the least recently used
// ones until the size bound holds.
func (s *MemoryStore) evict() {
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		if !s.expired(el.Value.(*entry)) {
			break
		}
		s.remove(el)
		el = prev
	}
	for s.maxUsers > 0 && s.order.Len() > s.maxUsers {
		s.remove(s.order.Back())
	}
}

func (s *MemoryStore) expired(e *entry) bool {
	return s.ttl > 0 && s.now().Sub(e.touched) > s.ttl
}

func (s *MemoryStore) remove(el *list.Element) {
	s.order.Remove(el)
	delete(s.items, el.Value.(*entry).phone)
}
