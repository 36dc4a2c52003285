// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cache keeps tokenized templates per server so that each distinct
// statement text is scanned once.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pingcap/stmtkit/lib/config"
	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/metrics"
	"github.com/pingcap/stmtkit/pkg/stmt/parse"
	"go.uber.org/atomic"
)

var (
	ErrClosed = errors.New("template cache is closed")
)

// key includes every option that changes the template of the same text.
type key struct {
	sql              string
	identQuote       byte
	backslashEscapes bool
	charset          string
}

// Cache is an LRU of templates for one server. It is safe for concurrent use.
type Cache struct {
	addr   string
	cfg    config.Cache
	lru    *lru.Cache[key, *parse.Template]
	hits   atomic.Int64
	misses atomic.Int64
}

func newCache(addr string, cfg config.Cache) (*Cache, error) {
	size := cfg.Size
	if size <= 0 {
		size = 1
	}
	l, err := lru.New[key, *parse.Template](size)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Cache{addr: addr, cfg: cfg, lru: l}, nil
}

// Tokenize returns the cached template of sql or tokenizes it. charset names
// opts.Encoding. Failures are not cached.
func (c *Cache) Tokenize(sql string, opts parse.Options, charset string) (*parse.Template, error) {
	if !c.cfg.Enabled || (c.cfg.MaxSQLLength > 0 && len(sql) > c.cfg.MaxSQLLength) {
		return parse.Tokenize(sql, opts)
	}
	k := key{sql: sql, identQuote: opts.IdentQuote, backslashEscapes: opts.BackslashEscapes, charset: charset}
	if tpl, ok := c.lru.Get(k); ok {
		c.hits.Inc()
		metrics.CacheCounter.WithLabelValues(c.addr, metrics.ResHit).Inc()
		return tpl, nil
	}
	c.misses.Inc()
	metrics.CacheCounter.WithLabelValues(c.addr, metrics.ResMiss).Inc()
	tpl, err := parse.Tokenize(sql, opts)
	if err != nil {
		return nil, err
	}
	c.lru.Add(k, tpl)
	metrics.CacheSizeGauge.WithLabelValues(c.addr).Set(float64(c.lru.Len()))
	return tpl, nil
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

// Stats returns the hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Purge drops all templates.
func (c *Cache) Purge() {
	c.lru.Purge()
	metrics.CacheSizeGauge.WithLabelValues(c.addr).Set(0)
}

// Registry owns the caches of all servers a process talks to.
type Registry struct {
	sync.Mutex
	cfg    config.Cache
	caches map[string]*Cache
	closed bool
}

func NewRegistry(cfg config.Cache) *Registry {
	return &Registry{
		cfg:    cfg,
		caches: make(map[string]*Cache),
	}
}

// Get returns the cache of the server at addr, creating it on first use.
func (r *Registry) Get(addr string) (*Cache, error) {
	r.Lock()
	defer r.Unlock()
	if r.closed {
		return nil, errors.WithStack(ErrClosed)
	}
	if c, ok := r.caches[addr]; ok {
		return c, nil
	}
	c, err := newCache(addr, r.cfg)
	if err != nil {
		return nil, err
	}
	r.caches[addr] = c
	return c, nil
}

// Evict drops the cache of addr, e.g. after the server's sql_mode changed.
func (r *Registry) Evict(addr string) {
	r.Lock()
	c, ok := r.caches[addr]
	delete(r.caches, addr)
	r.Unlock()
	if ok {
		c.lru.Purge()
		metrics.DelServer(addr)
	}
}

// Close drops all caches. Get fails afterwards.
func (r *Registry) Close() {
	r.Lock()
	caches := r.caches
	r.caches = make(map[string]*Cache)
	r.closed = true
	r.Unlock()
	for addr, c := range caches {
		c.lru.Purge()
		metrics.DelServer(addr)
	}
}
