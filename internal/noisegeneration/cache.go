package noisegeneration

import (
	"container/list"
	"sync"
)

// LRUCache - потокобезопасный кеш с вытеснением давно не использованных значений
type LRUCache[K comparable, V any] struct {
	mu        sync.Mutex
	items     map[K]*list.Element
	order     *list.List
	capacity  int
	hitCount  int
	missCount int
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRUCache создает кеш заданной емкости
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache[K, V]{
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
	}
}

// Get возвращает значение и флаг наличия
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hitCount++
		c.order.MoveToBack(el)
		return el.Value.(*lruEntry[K, V]).value, true
	}
	c.missCount++
	var zero V
	return zero, false
}

// Put добавляет или обновляет значение
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry[K, V]).value = value
		c.order.MoveToBack(el)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry[K, V]).key)
		}
	}

	c.items[key] = c.order.PushBack(&lruEntry[K, V]{key: key, value: value})
}

// Len возвращает текущий размер кеша
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// GetStats возвращает попадания, промахи и долю попаданий
func (c *LRUCache[K, V]) GetStats() (int, int, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hitCount + c.missCount
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hitCount) / float64(total)
	}
	return c.hitCount, c.missCount, hitRate
}

// Clear очищает кеш, сохраняя статистику
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
}

func (c *LRUCache[K, V]) stats() map[string]interface{} {
	hits, misses, rate := c.GetStats()
	return map[string]interface{}{
		"hits":     hits,
		"misses":   misses,
		"hit_rate": rate,
		"size":     c.Len(),
	}
}
