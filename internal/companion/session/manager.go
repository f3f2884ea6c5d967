package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"companion-go/pkg/log"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// 重置记录只需覆盖重置时仍在进行中的轮次。
const (
	resetHistorySize = 10000
	resetHistoryTTL  = 10 * time.Minute
)

// Seed 是新会话的开头两轮：指令与模型的确认。
type Seed struct {
	Instruction     string
	Acknowledgement string
}

// ReplayFunc 在会话未命中时提供要回放的历史轮次，按时间升序。
type ReplayFunc func(ctx context.Context) ([]Turn, error)

// Manager 负责按 key 懒创建会话，并保证同一个 key 上的修改串行进行。
type Manager struct {
	store    Store
	maxTurns int
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*keyLock
	epoch uint64
	// resets 记录每个被重置的前缀及其代数，早于该代数交出的会话不再写回。
	resets *expirable.LRU[string, uint64]
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager 创建 Manager。maxTurns 限制种子回合之后保留的轮数，<=0 表示不限制。
func NewManager(store Store, maxTurns int) *Manager {
	return &Manager{
		store:    store,
		maxTurns: maxTurns,
		now:      time.Now,
		locks:    make(map[string]*keyLock),
		resets:   expirable.NewLRU[string, uint64](resetHistorySize, nil, resetHistoryTTL),
	}
}

// Lock 获取 key 上的互斥锁，返回的函数用于释放。
func (m *Manager) Lock(key string) (unlock func()) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// GetOrCreate 返回 key 对应的会话；不存在时以 seed 开头新建，
// 回放 replay 提供的历史后保存。调用方应持有 key 的锁。
func (m *Manager) GetOrCreate(ctx context.Context, key string, seed Seed, replay ReplayFunc) (*Session, error) {
	epoch := m.currentEpoch()
	s, err := m.store.Load(ctx, key)
	if err == nil {
		s.epoch = epoch
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}

	now := m.now()
	s = &Session{
		Key:         key,
		Instruction: seed.Instruction,
		Turns: []Turn{
			{Role: RoleUser, Text: seed.Instruction},
			{Role: RoleModel, Text: seed.Acknowledgement},
		},
		CreatedAt: now,
		UpdatedAt: now,
		epoch:     epoch,
	}
	if replay != nil {
		turns, err := replay(ctx)
		if err != nil {
			return nil, fmt.Errorf("replay session %s: %w", key, err)
		}
		s.Turns = append(s.Turns, turns...)
	}
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Save 截断过长的历史后写回存储。会话交出之后其前缀被 ResetPrefix 重置过的，直接丢弃。
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if m.stale(s) {
		log.Debugf("丢弃已重置的会话: %s", s.Key)
		return nil
	}
	s.Turns = capTurns(s.Turns, m.maxTurns)
	s.UpdatedAt = m.now()
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session %s: %w", s.Key, err)
	}
	return nil
}

// Reset 丢弃一个会话，下一次 GetOrCreate 会重新创建。
func (m *Manager) Reset(ctx context.Context, key string) error {
	return m.store.Delete(ctx, key)
}

// ResetPrefix 丢弃所有以 prefix 开头的会话。
func (m *Manager) ResetPrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	m.epoch++
	m.resets.Add(prefix, m.epoch)
	m.mu.Unlock()
	return m.store.DeletePrefix(ctx, prefix)
}

func (m *Manager) currentEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

func (m *Manager) stale(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch == s.epoch {
		return false
	}
	for _, prefix := range m.resets.Keys() {
		if at, ok := m.resets.Peek(prefix); ok && at > s.epoch && strings.HasPrefix(s.Key, prefix) {
			return true
		}
	}
	return false
}

const seedTurns = 2

// capTurns 保留两个种子回合以及最近的 max 轮。
func capTurns(turns []Turn, max int) []Turn {
	if max <= 0 || len(turns) <= seedTurns+max {
		return turns
	}
	kept := make([]Turn, 0, seedTurns+max)
	kept = append(kept, turns[:seedTurns]...)
	kept = append(kept, turns[len(turns)-max:]...)
	return kept
}
