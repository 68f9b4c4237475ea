package cache

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrKeyExists = errors.New("key already exists in cache")

// Cache is a weighted LRU cache. Inserting past the weight budget evicts the
// least recently used entries.
type Cache[V any] interface {
	// GetWeight returns the current total weight of cached items
	GetWeight() int

	// GetBudget returns the weight budget
	GetBudget() int

	// Insert adds a new item. ErrKeyExists is returned if the key is already
	// cached.
	Insert(key string, value V, weight int) error

	// Retrieve gets an item and marks it as most recently used
	Retrieve(key string) (V, bool)

	// Clear removes every item
	Clear()
}

type entry[V any] struct {
	next   *entry[V]
	prev   *entry[V]
	key    string
	value  V
	weight int
}

type cache[V any] struct {
	log *logrus.Entry

	mu     sync.Mutex
	head   *entry[V]
	tail   *entry[V]
	lookup map[string]*entry[V]
	weight int
	budget int
}

// NewCache returns a new Cache with the provided weight budget
func NewCache[V any](budget int) Cache[V] {
	return &cache[V]{
		log:    logrus.StandardLogger().WithField("type", "cache"),
		lookup: make(map[string]*entry[V]),
		budget: budget,
	}
}

func (c *cache[V]) GetWeight() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.weight
}

func (c *cache[V]) GetBudget() int {
	return c.budget
}

func (c *cache[V]) Insert(key string, value V, weight int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookup[key]; ok {
		return ErrKeyExists
	}

	e := &entry[V]{
		key:    key,
		value:  value,
		weight: weight,
	}
	c.pushFront(e)
	c.lookup[key] = e
	c.weight += weight

	for c.weight > c.budget && c.tail != nil {
		evicted := c.tail
		c.unlink(evicted)
		delete(c.lookup, evicted.key)
		c.weight -= evicted.weight

		c.log.WithFields(logrus.Fields{
			"key":          evicted.key,
			"weight":       evicted.weight,
			"spare_weight": c.budget - c.weight,
		}).Trace("evicted cache entry")
	}

	return nil
}

func (c *cache[V]) Retrieve(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup[key]
	if !ok {
		var zero V
		return zero, false
	}

	if e != c.head {
		c.unlink(e)
		c.pushFront(e)
	}

	return e.value, true
}

func (c *cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.head = nil
	c.tail = nil
	c.lookup = make(map[string]*entry[V])
	c.weight = 0
}

func (c *cache[V]) pushFront(e *entry[V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *cache[V]) unlink(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.next = nil
	e.prev = nil
}
