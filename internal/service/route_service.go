package service

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	celgo "github.com/google/cel-go/cel"

	celeval "github.com/evcare/portal-gate/internal/adapter/outbound/cel"
	"github.com/evcare/portal-gate/internal/domain/auth"
	"github.com/evcare/portal-gate/internal/domain/route"
	"github.com/evcare/portal-gate/internal/domain/session"
)

// lruEntry is a doubly-linked list node for the LRU cache.
type lruEntry struct {
	key      uint64
	decision route.Decision
	prev     *lruEntry
	next     *lruEntry
}

// decisionCache is an LRU cache of route decisions keyed by hashed input.
// The route table is immutable, so entries never need invalidation.
type decisionCache struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry
	head    *lruEntry // most recently used
	tail    *lruEntry // least recently used
	maxSize int
}

// newDecisionCache creates a new LRU cache with the given max size.
func newDecisionCache(maxSize int) *decisionCache {
	return &decisionCache{
		entries: make(map[uint64]*lruEntry, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a cached decision. On hit, the entry is promoted to the head.
func (c *decisionCache) Get(key uint64) (route.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.decision, true
	}
	return route.Decision{}, false
}

// Put stores a decision. At capacity, the least recently used entry is evicted.
func (c *decisionCache) Put(key uint64, decision route.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.decision = decision
		c.moveToHeadLocked(e)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}

	e := &lruEntry{key: key, decision: decision}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

// Size returns current cache size.
func (c *decisionCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *decisionCache) moveToHeadLocked(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

func (c *decisionCache) pushHeadLocked(e *lruEntry) {
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

func (c *decisionCache) unlinkLocked(e *lruEntry) {
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
	e.prev = nil
	e.next = nil
}

func (c *decisionCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// computeDecisionKey hashes the decision inputs. Zero-byte separators keep
// adjacent fields from colliding.
func computeDecisionKey(path string, status session.Status, role auth.Role) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(path)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(string(status))
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(string(role))
	return h.Sum64()
}

// RouteService decides what to do with a request path given the current
// session. Rule conditions are compiled to CEL programs once at construction;
// whole decisions are cached by hashed input since the table is immutable.
type RouteService struct {
	table     *route.Table
	evaluator *celeval.Evaluator
	programs  map[string]celgo.Program // keyed by rule path
	cache     *decisionCache
	logger    *slog.Logger
}

// RouteServiceOption configures RouteService.
type RouteServiceOption func(*RouteService)

// WithDecisionCacheSize sets the maximum number of cached decisions.
func WithDecisionCacheSize(size int) RouteServiceOption {
	return func(s *RouteService) {
		s.cache = newDecisionCache(size)
	}
}

// NewRouteService compiles all rule conditions and returns the service.
// A rule with an invalid condition fails construction rather than being
// silently skipped at request time.
func NewRouteService(table *route.Table, evaluator *celeval.Evaluator, logger *slog.Logger, opts ...RouteServiceOption) (*RouteService, error) {
	s := &RouteService{
		table:     table,
		evaluator: evaluator,
		programs:  make(map[string]celgo.Program),
		cache:     newDecisionCache(1024),
		logger:    logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	for _, rule := range table.Rules() {
		if rule.Condition == "" {
			continue
		}
		if err := evaluator.ValidateExpression(rule.Condition); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Path, err)
		}
		prg, err := evaluator.Compile(rule.Condition)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Path, err)
		}
		s.programs[rule.Path] = prg
	}

	return s, nil
}

// Decide resolves path against the table under the given session snapshot.
func (s *RouteService) Decide(path string, snapshot session.Snapshot) route.Decision {
	key := computeDecisionKey(path, snapshot.Status, snapshot.Role())
	if decision, ok := s.cache.Get(key); ok {
		return decision
	}

	decision := route.Decide(s.table, path, snapshot.Status, snapshot.Role(), s.evalCondition)
	s.cache.Put(key, decision)
	return decision
}

// Table exposes the underlying route table for handlers that need the login
// path or fallback target.
func (s *RouteService) Table() *route.Table {
	return s.table
}

// CacheSize returns the number of cached decisions. Used by health reporting.
func (s *RouteService) CacheSize() int {
	return s.cache.Size()
}

// evalCondition runs the precompiled program for a rule.
// Evaluation failures deny access: a broken condition must not open a route.
func (s *RouteService) evalCondition(rule route.Rule, path string, authenticated bool, role auth.Role) bool {
	prg, ok := s.programs[rule.Path]
	if !ok {
		// No compiled program means no condition; allow the rule to apply.
		return true
	}

	result, err := s.evaluator.Evaluate(prg, celeval.ConditionInput{
		Path:          path,
		Authenticated: authenticated,
		Role:          string(role),
	})
	if err != nil {
		s.logger.Warn("route condition evaluation failed, denying",
			"rule", rule.Path,
			"path", path,
			"error", err,
		)
		return false
	}
	return result
}
