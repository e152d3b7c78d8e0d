package util

import (
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// bloomLayer 是固定容量的布隆过滤器，装满后由 SeenSet 追加新的一层。
type bloomLayer struct {
	bits     *bitset.BitSet
	m, k     uint
	count    uint
	capacity uint
}

func newBloomLayer(capacity uint, errorRate float64) *bloomLayer {
	// m = -(n * ln p) / (ln 2)^2, k = (m / n) * ln 2
	m := uint(math.Ceil(-(float64(capacity) * math.Log(errorRate)) / (math.Ln2 * math.Ln2)))
	k := uint(math.Ceil(float64(m) / float64(capacity) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return &bloomLayer{bits: bitset.New(m), m: m, k: k, capacity: capacity}
}

// positions 用两个 FNV 哈希做 double hashing，得到 k 个位下标。
func (l *bloomLayer) positions(data []byte) []uint {
	h1 := fnv.New64a()
	_, _ = h1.Write(data)
	a := h1.Sum64()
	h2 := fnv.New64()
	_, _ = h2.Write(data)
	b := h2.Sum64()

	out := make([]uint, l.k)
	for i := uint(0); i < l.k; i++ {
		out[i] = uint((a + uint64(i)*b) % uint64(l.m))
	}
	return out
}

func (l *bloomLayer) add(data []byte) {
	for _, p := range l.positions(data) {
		l.bits.Set(p)
	}
	l.count++
}

func (l *bloomLayer) test(data []byte) bool {
	for _, p := range l.positions(data) {
		if !l.bits.Test(p) {
			return false
		}
	}
	return true
}

// SeenConfig 配置 SeenSet。
type SeenConfig struct {
	// InitialCapacity 是第一层的预估元素数量。
	InitialCapacity uint
	// ErrorRate 是第一层的误报率，例如 0.01。
	ErrorRate float64
	// GrowthFactor 是每追加一层时容量的放大倍数，>= 1。
	GrowthFactor float64
	// Tightening 是每层误报率相对上一层的收紧比例，(0, 1)。
	Tightening float64
}

// SeenSet 是可扩容、线程安全的布隆过滤器，用来记录"大概率已经处理过"的键。
// Contains 为 false 时一定没见过；为 true 时调用方仍需做一次权威检查。
type SeenSet struct {
	config SeenConfig
	layers []*bloomLayer
	lock   sync.RWMutex
}

// NewSeenSet 创建一个 SeenSet。
func NewSeenSet(config SeenConfig) (*SeenSet, error) {
	if config.InitialCapacity == 0 || config.ErrorRate <= 0 || config.ErrorRate >= 1 ||
		config.GrowthFactor < 1 || config.Tightening <= 0 || config.Tightening >= 1 {
		return nil, fmt.Errorf("无效的 SeenSet 配置参数: %+v", config)
	}
	return &SeenSet{
		config: config,
		layers: []*bloomLayer{newBloomLayer(config.InitialCapacity, config.ErrorRate)},
	}, nil
}

// Add 记录一个键。当前层装满时按 GrowthFactor 扩容并收紧误报率。
func (s *SeenSet) Add(key string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	last := s.layers[len(s.layers)-1]
	if last.count >= last.capacity {
		rate := s.config.ErrorRate * math.Pow(s.config.Tightening, float64(len(s.layers)))
		last = newBloomLayer(uint(math.Ceil(float64(last.capacity)*s.config.GrowthFactor)), rate)
		s.layers = append(s.layers, last)
	}
	last.add([]byte(key))
}

// Contains 报告键是否可能已被记录。
func (s *SeenSet) Contains(key string) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	data := []byte(key)
	// 新元素总在最新的一层，从新到旧查
	for i := len(s.layers) - 1; i >= 0; i-- {
		if s.layers[i].test(data) {
			return true
		}
	}
	return false
}

// Layers 返回当前的层数。
func (s *SeenSet) Layers() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.layers)
}
