package seeds

import (
	"strings"
	"sync"

	"CaseCurator/internal/domain"
)

// DefaultCapacity bounds each rolling set.
const DefaultCapacity = 50

// Tracker remembers recently used subdomains, entities and topics within a run.
type Tracker struct {
	mu         sync.Mutex
	subdomains *rollingSet
	entities   *rollingSet
	topics     *rollingSet
}

// NewTracker builds a tracker whose sets evict oldest-first beyond capacity.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		subdomains: newRollingSet(capacity),
		entities:   newRollingSet(capacity),
		topics:     newRollingSet(capacity),
	}
}

// Update folds accepted seeds into the sets.
func (t *Tracker) Update(seeds ...domain.ScenarioSeed) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range seeds {
		t.subdomains.add(s.Subdomain)
		t.topics.add(s.Topic)
		for _, e := range s.Entities {
			t.entities.add(e)
		}
	}
}

// Contains reports whether the seed repeats a tracked topic or entity.
// A repeated subdomain alone is not a duplicate; it only steers the prompt.
func (t *Tracker) Contains(s domain.ScenarioSeed) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.topics.has(s.Topic) {
		return true
	}
	for _, e := range s.Entities {
		if t.entities.has(e) {
			return true
		}
	}
	return false
}

// Subdomains returns tracked subdomains, oldest first.
func (t *Tracker) Subdomains() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subdomains.values()
}

// Entities returns tracked entities, oldest first.
func (t *Tracker) Entities() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entities.values()
}

// Topics returns tracked topics, oldest first.
func (t *Tracker) Topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.topics.values()
}

type rollingSet struct {
	capacity int
	order    []string
	index    map[string]string
}

func newRollingSet(capacity int) *rollingSet {
	return &rollingSet{capacity: capacity, index: map[string]string{}}
}

func normalize(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}

func (r *rollingSet) add(v string) {
	k := normalize(v)
	if k == "" {
		return
	}
	if _, ok := r.index[k]; ok {
		return
	}
	r.order = append(r.order, k)
	r.index[k] = strings.TrimSpace(v)
	for len(r.order) > r.capacity {
		delete(r.index, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *rollingSet) has(v string) bool {
	_, ok := r.index[normalize(v)]
	return ok
}

func (r *rollingSet) values() []string {
	out := make([]string, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.index[k])
	}
	return out
}
