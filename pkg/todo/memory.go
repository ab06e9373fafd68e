package todo

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps items in process memory
type MemoryStore struct {
	mu    sync.RWMutex
	items map[int]Todo
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int]Todo)}
}

func (s *MemoryStore) List(ctx context.Context, owner string) ([]Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	todos := make([]Todo, 0)
	for _, t := range s.items {
		if t.Owner == owner {
			todos = append(todos, t)
		}
	}
	sort.Slice(todos, func(i, j int) bool { return todos[i].ID < todos[j].ID })
	return todos, nil
}

func (s *MemoryStore) Get(ctx context.Context, id int) (Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.items[id]
	if !ok {
		return Todo{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) Create(ctx context.Context, todo Todo) (Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	todo.ID = s.nextIDLocked()
	s.items[todo.ID] = todo
	return todo, nil
}

func (s *MemoryStore) Update(ctx context.Context, todo Todo) (Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[todo.ID]; !ok {
		return Todo{}, ErrNotFound
	}
	s.items[todo.ID] = todo
	return todo, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, id)
	return nil
}

func (s *MemoryStore) Seed(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) > 0 {
		return nil
	}
	for _, title := range SampleTitles {
		id := s.nextIDLocked()
		s.items[id] = Todo{ID: id, Title: title, Owner: owner}
	}
	return nil
}

func (s *MemoryStore) nextIDLocked() int {
	max := 0
	for id := range s.items {
		if id > max {
			max = id
		}
	}
	return max + 1
}
