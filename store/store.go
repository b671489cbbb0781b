// Package store holds the client's observable state containers. Each store is a
// named slice of state that is persisted on every change and rehydrated on start.
// Reads return snapshots; writes go through the typed commands of the domain
// stores so every mutation notifies subscribers and reaches storage.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Persister saves and restores named JSON slices. *database.Storage implements it.
type Persister interface {
	Load(ctx context.Context, name string, v any) (bool, error)
	Save(ctx context.Context, name string, v any) error
	Delete(ctx context.Context, name string) error
}

const persistTimeout = 5 * time.Second

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Store is a mutable, observable value of type T.
type Store[T any] struct {
	name    string
	initial func() T
	persist Persister

	mu     sync.RWMutex
	state  T
	subs   []subscriber[T]
	nextID int
}

// New creates a store. A nil Persister keeps the store in memory only.
func New[T any](name string, initial func() T, p Persister) *Store[T] {
	return &Store[T]{
		name:    name,
		initial: initial,
		persist: p,
		state:   initial(),
	}
}

// Name returns the storage key.
func (s *Store[T]) Name() string { return s.name }

// Get returns the current snapshot. Callers must treat it as read-only.
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Update applies fn to the state, persists the result and notifies subscribers.
// fn must not retain the pointer.
func (s *Store[T]) Update(fn func(*T)) {
	s.mu.Lock()
	fn(&s.state)
	snapshot := s.state
	s.save(snapshot)
	subs := s.subscribers()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// Subscribe registers fn for every subsequent change. The returned func removes it.
func (s *Store[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Hydrate replaces the state with the persisted slice. found reports whether
// anything had been saved.
func (s *Store[T]) Hydrate(ctx context.Context) (bool, error) {
	if s.persist == nil {
		return false, nil
	}
	loaded := s.initial()
	found, err := s.persist.Load(ctx, s.name, &loaded)
	if err != nil || !found {
		return false, err
	}

	s.mu.Lock()
	s.state = loaded
	subs := s.subscribers()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(loaded)
	}
	return true, nil
}

// Reset restores the initial state and removes the persisted slice.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	s.state = s.initial()
	snapshot := s.state
	if s.persist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := s.persist.Delete(ctx, s.name); err != nil {
			slog.Warn("store reset failed", "store", s.name, "err", err)
		}
		cancel()
	}
	subs := s.subscribers()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// save runs under s.mu so storage sees writes in mutation order.
func (s *Store[T]) save(v T) {
	if s.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persist.Save(ctx, s.name, v); err != nil {
		slog.Warn("store persist failed", "store", s.name, "err", err)
	}
}

func (s *Store[T]) subscribers() []func(T) {
	fns := make([]func(T), len(s.subs))
	for i, sub := range s.subs {
		fns[i] = sub.fn
	}
	return fns
}

// view exposes the read side of a Store to the domain stores that embed it.
type view[T any] struct {
	s *Store[T]
}

// Get returns the current snapshot.
func (v view[T]) Get() T { return v.s.Get() }

// Subscribe registers fn for every subsequent change.
func (v view[T]) Subscribe(fn func(T)) func() { return v.s.Subscribe(fn) }

// Hydrate restores the persisted slice.
func (v view[T]) Hydrate(ctx context.Context) (bool, error) { return v.s.Hydrate(ctx) }

// Reset restores the initial state.
func (v view[T]) Reset() { v.s.Reset() }

// Name returns the storage key.
func (v view[T]) Name() string { return v.s.Name() }
