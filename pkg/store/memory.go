package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs tests and single-node deployments;
// entries carry deadlines and a background sweeper evicts expired keys so a
// long-running process does not accumulate finished events.
type Memory struct {
	mu     sync.RWMutex
	values map[string]memoryValue
	hashes map[string]*memoryHash
	zsets  map[string]*memoryZSet

	stop chan struct{}
	once sync.Once
}

type memoryValue struct {
	data     []byte
	deadline time.Time // zero means no expiry
}

type memoryHash struct {
	fields   map[string]string
	deadline time.Time
}

type memoryZSet struct {
	scores   map[string]float64
	deadline time.Time
}

// NewMemory creates an in-memory store and starts its eviction sweeper.
func NewMemory() *Memory {
	m := &Memory{
		values: make(map[string]memoryValue),
		hashes: make(map[string]*memoryHash),
		zsets:  make(map[string]*memoryZSet),
		stop:   make(chan struct{}),
	}
	go m.sweep(30 * time.Second)
	return m
}

func (m *Memory) sweep(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-t.C:
			m.mu.Lock()
			for k, v := range m.values {
				if !v.deadline.IsZero() && now.After(v.deadline) {
					delete(m.values, k)
				}
			}
			for k, h := range m.hashes {
				if !h.deadline.IsZero() && now.After(h.deadline) {
					delete(m.hashes, k)
				}
			}
			for k, z := range m.zsets {
				if !z.deadline.IsZero() && now.After(z.deadline) {
					delete(m.zsets, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

func deadlineFor(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok || expired(v.deadline) {
		return nil, false, nil
	}
	out := make([]byte, len(v.data))
	copy(out, v.data)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	data := make([]byte, len(val))
	copy(data, val)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = memoryValue{data: data, deadline: deadlineFor(ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.hashes, key)
	delete(m.zsets, key)
	return nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hashes[key]
	if !ok || expired(h.deadline) {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(h.fields))
	for k, v := range h.fields {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) HSet(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.liveHash(key)
	for k, v := range fields {
		h.fields[k] = v
	}
	if ttl > 0 {
		h.deadline = deadlineFor(ttl)
	}
	return nil
}

func (m *Memory) HSetNX(_ context.Context, key, field, val string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.liveHash(key)
	if _, exists := h.fields[field]; exists {
		return false, nil
	}
	h.fields[field] = val
	return true, nil
}

// liveHash returns the hash for key, replacing an expired one. Callers hold mu.
func (m *Memory) liveHash(key string) *memoryHash {
	h, ok := m.hashes[key]
	if !ok || expired(h.deadline) {
		h = &memoryHash{fields: make(map[string]string)}
		m.hashes[key] = h
	}
	return h
}

func (m *Memory) Add(_ context.Context, key, member string, score float64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zsets[key]
	if !ok || expired(z.deadline) {
		z = &memoryZSet{scores: make(map[string]float64)}
		m.zsets[key] = z
	}
	z.scores[member] = score
	if ttl > 0 {
		z.deadline = deadlineFor(ttl)
	}
	return nil
}

func (m *Memory) sorted(key string) []Member {
	z, ok := m.zsets[key]
	if !ok || expired(z.deadline) {
		return nil
	}
	members := make([]Member, 0, len(z.scores))
	for id, score := range z.scores {
		members = append(members, Member{ID: id, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].ID < members[j].ID
	})
	return members
}

func (m *Memory) TopN(_ context.Context, key string, n int) ([]Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.sorted(key)
	if n >= 0 && len(members) > n {
		members = members[:n]
	}
	return members, nil
}

func (m *Memory) Rank(_ context.Context, key, member string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, mb := range m.sorted(key) {
		if mb.ID == member {
			return i + 1, true, nil
		}
	}
	return 0, false, nil
}

func (m *Memory) Card(_ context.Context, key string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, ok := m.zsets[key]
	if !ok || expired(z.deadline) {
		return 0, nil
	}
	return len(z.scores), nil
}

func (m *Memory) Remove(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z, ok := m.zsets[key]; ok {
		delete(z.scores, member)
	}
	return nil
}

// Close stops the sweeper.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}
