package companion

import (
	"math/rand"
	"sync"
)

// Rand 是回复选择所用的随机源，测试中可替换为固定种子。
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// LockedRand 是可并发使用的 math/rand 封装。
type LockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewLockedRand(seed int64) *LockedRand {
	return &LockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *LockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *LockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}
