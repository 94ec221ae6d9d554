package engine

import "sync"

// keyedMutex serializes work per string key. Used to keep a tick-driven and
// an event-driven evaluation of the same contact from racing.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// campaignLocks hands out per-campaign RW mutexes: evaluation takes the read
// side, structural graph edits the write side.
type campaignLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.RWMutex
}

func newCampaignLocks() *campaignLocks {
	return &campaignLocks{locks: make(map[int]*sync.RWMutex)}
}

func (c *campaignLocks) get(campaignID int) *sync.RWMutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.locks[campaignID]
	if !ok {
		m = &sync.RWMutex{}
		c.locks[campaignID] = m
	}
	return m
}

func (c *campaignLocks) rlock(campaignID int) func() {
	m := c.get(campaignID)
	m.RLock()
	return m.RUnlock
}

func (c *campaignLocks) lock(campaignID int) func() {
	m := c.get(campaignID)
	m.Lock()
	return m.Unlock
}
