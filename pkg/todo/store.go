package todo

import (
	"context"
	"errors"

	"github.com/jds-integration/integration/pkg/observability"
)

// ErrNotFound is returned when no item has the requested ID
var ErrNotFound = errors.New("todo not found")

// Todo is a single to-do item
type Todo struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Owner string `json:"owner"`
}

// SampleTitles are added for the first caller of an empty store
var SampleTitles = []string{"Pick up groceries", "Finish invoice report"}

// Store persists to-do items
type Store interface {
	// List returns the owner's items ordered by ID
	List(ctx context.Context, owner string) ([]Todo, error)
	Get(ctx context.Context, id int) (Todo, error)
	// Create assigns the next ID (highest existing ID + 1) and stores the item
	Create(ctx context.Context, todo Todo) (Todo, error)
	// Update replaces an existing item; ErrNotFound if it does not exist
	Update(ctx context.Context, todo Todo) (Todo, error)
	// Delete removes an item. Deleting a missing item is not an error.
	Delete(ctx context.Context, id int) error
	// Seed adds the sample items for owner when the store is empty
	Seed(ctx context.Context, owner string) error
}

// InstrumentedStore records every store call in metrics
type InstrumentedStore struct {
	next    Store
	backend string
	metrics *observability.Metrics
}

// NewInstrumentedStore wraps next. backend labels the metrics.
func NewInstrumentedStore(next Store, backend string, metrics *observability.Metrics) *InstrumentedStore {
	return &InstrumentedStore{next: next, backend: backend, metrics: metrics}
}

func (s *InstrumentedStore) record(op string, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.metrics.RecordStoreOperation(s.backend, op, err)
}

func (s *InstrumentedStore) List(ctx context.Context, owner string) ([]Todo, error) {
	todos, err := s.next.List(ctx, owner)
	s.record("list", err)
	return todos, err
}

func (s *InstrumentedStore) Get(ctx context.Context, id int) (Todo, error) {
	todo, err := s.next.Get(ctx, id)
	s.record("get", err)
	return todo, err
}

func (s *InstrumentedStore) Create(ctx context.Context, todo Todo) (Todo, error) {
	created, err := s.next.Create(ctx, todo)
	s.record("create", err)
	return created, err
}

func (s *InstrumentedStore) Update(ctx context.Context, todo Todo) (Todo, error) {
	updated, err := s.next.Update(ctx, todo)
	s.record("update", err)
	return updated, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, id int) error {
	err := s.next.Delete(ctx, id)
	s.record("delete", err)
	return err
}

func (s *InstrumentedStore) Seed(ctx context.Context, owner string) error {
	err := s.next.Seed(ctx, owner)
	s.record("seed", err)
	return err
}
