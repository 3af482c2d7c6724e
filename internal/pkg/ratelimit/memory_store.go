package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     int64
	expiresAt time.Time
}

// MemoryStore 进程内计数存储
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	puts    int
}

// NewMemoryStore 创建进程内计数存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get 读取未过期的计数
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return 0, false, nil
	}
	return e.value, true, nil
}

// Put 写入计数，并定期清理过期条目
func (s *MemoryStore) Put(ctx context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}

	s.puts++
	if s.puts%256 == 0 {
		for k, e := range s.entries {
			if !now.Before(e.expiresAt) {
				delete(s.entries, k)
			}
		}
	}
	return nil
}

// Len 当前条目数
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
