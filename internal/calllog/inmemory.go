package calllog

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// InMemoryStore keeps call records in process for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	byCall  map[string]Call
	byBrand map[string][]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byCall:  make(map[string]Call),
		byBrand: make(map[string][]string),
	}
}

func (s *InMemoryStore) SaveCall(_ context.Context, call Call) (Call, error) {
	if call.CallID == "" {
		return Call{}, fmt.Errorf("save call: empty call id")
	}
	call = prepare(call)
	call.Params = maps.Clone(call.Params)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byCall[call.CallID]; exists {
		return Call{}, fmt.Errorf("save call %s: already recorded", call.CallID)
	}
	s.byCall[call.CallID] = call
	s.byBrand[call.Brand] = append(s.byBrand[call.Brand], call.CallID)
	return call, nil
}

func (s *InMemoryStore) GetCall(_ context.Context, callID string) (Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	call, ok := s.byCall[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return copyCall(call), nil
}

func (s *InMemoryStore) ListCalls(_ context.Context, brand string, limit int) ([]Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byBrand[brand]
	limit = normalizeLimit(limit)
	if limit > len(ids) {
		limit = len(ids)
	}
	out := make([]Call, 0, limit)
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyCall(s.byCall[ids[i]]))
	}
	return out, nil
}

func (s *InMemoryStore) SaveVerification(_ context.Context, callID string, v Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.byCall[callID]
	if !ok {
		return ErrNotFound
	}
	v.Fields = maps.Clone(v.Fields)
	call.Verification = &v
	s.byCall[callID] = call
	return nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }

func copyCall(c Call) Call {
	c.Params = maps.Clone(c.Params)
	if c.Verification != nil {
		v := *c.Verification
		v.Fields = maps.Clone(v.Fields)
		c.Verification = &v
	}
	return c
}
