package util

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CacheConfig 用于配置LRU缓存的行为。
type CacheConfig struct {
	// Capacity 是缓存的最大元素数量，必须大于 0。
	Capacity int
	// TTL 是元素的空闲存活时间，每次命中都会重新计时。如果为0，则元素永不过期。
	TTL time.Duration
	// Now 用于测试中替换时钟，默认为 time.Now。
	Now func() time.Time
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	expiration time.Time
}

// LRUCache 是一个支持泛型、线程安全、带可选 TTL 的 LRU 缓存。
type LRUCache[K comparable, V any] struct {
	config CacheConfig
	ll     *list.List
	cache  map[K]*list.Element
	lock   sync.Mutex
}

// NewLRU 使用指定的配置创建一个LRU缓存实例。
func NewLRU[K comparable, V any](config CacheConfig) (*LRUCache[K, V], error) {
	if config.Capacity <= 0 {
		return nil, fmt.Errorf("LRU 缓存容量必须大于 0")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &LRUCache[K, V]{
		config: config,
		ll:     list.New(),
		cache:  make(map[K]*list.Element),
	}, nil
}

// Get 根据键获取一个值并刷新其过期时间，过期的元素会被顺带移除。
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var zero V
	element, ok := c.cache[key]
	if !ok {
		return zero, false
	}
	e := element.Value.(*entry[K, V])
	if c.expired(e) {
		c.removeElement(element)
		return zero, false
	}
	c.touch(element)
	return e.value, true
}

// GetOrCreate 返回键对应的值，不存在时调用 create 创建并放入缓存。
func (c *LRUCache[K, V]) GetOrCreate(key K, create func() V) V {
	c.lock.Lock()
	defer c.lock.Unlock()

	if element, ok := c.cache[key]; ok {
		e := element.Value.(*entry[K, V])
		if !c.expired(e) {
			c.touch(element)
			return e.value
		}
		c.removeElement(element)
	}
	v := create()
	c.put(key, v)
	return v
}

// Put 向缓存中添加或更新一个键值对。
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.put(key, value)
}

// Delete 移除一个键，返回该键是否存在。
func (c *LRUCache[K, V]) Delete(key K) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	element, ok := c.cache[key]
	if ok {
		c.removeElement(element)
	}
	return ok
}

// Len 返回当前缓存中的条目数量（可能包含尚未被淘汰的过期条目）。
func (c *LRUCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ll.Len()
}

// 以下方法假设已持有锁。

func (c *LRUCache[K, V]) put(key K, value V) {
	var exp time.Time
	if c.config.TTL > 0 {
		exp = c.config.Now().Add(c.config.TTL)
	}
	if element, ok := c.cache[key]; ok {
		e := element.Value.(*entry[K, V])
		e.value = value
		e.expiration = exp
		c.ll.MoveToFront(element)
		return
	}
	c.cache[key] = c.ll.PushFront(&entry[K, V]{key: key, value: value, expiration: exp})
	for c.ll.Len() > c.config.Capacity {
		c.removeElement(c.ll.Back())
	}
}

func (c *LRUCache[K, V]) touch(element *list.Element) {
	if c.config.TTL > 0 {
		element.Value.(*entry[K, V]).expiration = c.config.Now().Add(c.config.TTL)
	}
	c.ll.MoveToFront(element)
}

func (c *LRUCache[K, V]) expired(e *entry[K, V]) bool {
	return c.config.TTL > 0 && c.config.Now().After(e.expiration)
}

func (c *LRUCache[K, V]) removeElement(e *list.Element) {
	c.ll.Remove(e)
	delete(c.cache, e.Value.(*entry[K, V]).key)
}
