// Package memory provides an in-process storage slot. It keeps the encoded
// payload rather than the entries so a Load always goes through the codec.
package memory

import (
	"context"
	"slices"
	"sync"

	"ledger/internal/core"
)

type Store struct {
	mu      sync.Mutex
	payload []byte
	saves   int
	loadErr error
	saveErr error
}

func New() *Store {
	return &Store{}
}

// NewWithPayload seeds the slot with raw bytes, e.g. a corrupt payload.
func NewWithPayload(payload []byte) *Store {
	return &Store{payload: slices.Clone(payload)}
}

// Load decodes the slot; an empty slot returns nil, nil.
func (s *Store) Load(_ context.Context) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.payload == nil {
		return nil, nil
	}
	return core.DecodeEntries(s.payload)
}

// Save overwrites the slot with the encoded collection.
func (s *Store) Save(_ context.Context, entries []core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := core.EncodeEntries(entries)
	if err != nil {
		return err
	}
	s.payload = data
	s.saves++
	return nil
}

// FailLoad makes subsequent Loads return err. Pass nil to recover.
func (s *Store) FailLoad(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// FailSave makes subsequent Saves return err. Pass nil to recover.
func (s *Store) FailSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Payload returns a copy of the raw slot contents.
func (s *Store) Payload() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.payload)
}

// Saves counts successful writes.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
