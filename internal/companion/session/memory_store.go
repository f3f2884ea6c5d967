package session

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore 把会话保存在进程内的 LRU 中，同时受最大条数与最长存活时间约束。
// Load 返回的是存储中的同一个对象。
type MemoryStore struct {
	cache *expirable.LRU[string, *Session]
}

func NewMemoryStore(maxSize int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{cache: expirable.NewLRU[string, *Session](maxSize, nil, maxAge)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (*Session, error) {
	s, ok := m.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.cache.Add(s.Key, s)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	for _, key := range m.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.cache.Remove(key)
		}
	}
	return nil
}

// Len 返回当前缓存的会话数。
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
