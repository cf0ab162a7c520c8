package signing

import "sync"

// Cache owns a single deep copy of a Config, created once at client
// construction and read-only thereafter. Every request signs against
// this shared copy rather than the caller's original, per spec §4.7.
type Cache struct {
	once sync.Once
	cfg  Config
	done chan struct{}
}

// NewCache builds a Cache that owns a defensive copy of cfg, including a
// retained reference to its Credentials.
func NewCache(cfg Config) *Cache {
	c := &Cache{done: make(chan struct{})}
	c.cfg = cfg.clone()
	close(c.done)
	return c
}

// Config returns the cached, read-only signing configuration. Callers
// must not mutate the returned value's reference fields.
func (c *Cache) Config() Config {
	<-c.done
	return c.cfg
}

// Close releases the retained Credentials reference. Client shutdown
// calls it; calling it again is a no-op.
func (c *Cache) Close() {
	c.once.Do(func() {
		if c.cfg.Credentials != nil {
			c.cfg.Credentials.Release()
		}
	})
}
