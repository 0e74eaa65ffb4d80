package retrieve

import (
	"container/list"
	"sync"
)

// answerCache is a small LRU over finished answers so repeated questions
// skip retrieval and generation entirely.
type answerCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type cacheItem struct {
	key    string
	answer Answer
}

func newAnswerCache(capacity int) *answerCache {
	if capacity <= 0 {
		capacity = 128
	}
	return &answerCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (c *answerCache) get(key string) (Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return Answer{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheItem).answer, true
}

func (c *answerCache) put(key string, answer Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheItem).answer = answer
		c.order.MoveToFront(elem)
		return
	}
	elem := c.order.PushFront(&cacheItem{key: key, answer: answer})
	c.entries[key] = elem
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheItem).key)
	}
}
