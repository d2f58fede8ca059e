package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const updatedKey = "_updated"

// Counts holds per-(data type, scope) record-count estimates, persisted as
// {data_type: {zip: count, ..., "_updated": iso8601}}. A single writer per
// process flushes the file; losing a write only costs accuracy.
type Counts struct {
	mu      sync.Mutex
	path    string
	data    map[string]map[string]int
	updated map[string]time.Time
	dirty   bool
}

// LoadCounts reads the counts file. A missing file yields an empty store.
func LoadCounts(path string) (*Counts, error) {
	c := &Counts{
		path:    path,
		data:    make(map[string]map[string]int),
		updated: make(map[string]time.Time),
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read counts file: %w", err)
	}
	var doc map[string]map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse counts file: %w", err)
	}
	for dataType, scopes := range doc {
		m := make(map[string]int, len(scopes))
		for scope, v := range scopes {
			switch val := v.(type) {
			case float64:
				m[scope] = int(val)
			case string:
				if scope == updatedKey {
					if t, err := time.Parse(time.RFC3339, val); err == nil {
						c.updated[dataType] = t
					}
				}
			}
		}
		c.data[dataType] = m
	}
	return c, nil
}

// Get returns the count for a scope.
func (c *Counts) Get(dataType, scope string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.data[dataType][scope]
	return n, ok
}

// Set records a count.
func (c *Counts) Set(dataType, scope string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.data[dataType]
	if !ok {
		m = make(map[string]int)
		c.data[dataType] = m
	}
	m[scope] = n
	c.updated[dataType] = time.Now().UTC()
	c.dirty = true
}

// Allocate splits total across scopes in proportion to their counts. Scopes
// with no recorded count are weighted at the mean of the known ones (or
// evenly when nothing is known). The shares always sum to total.
func (c *Counts) Allocate(dataType string, scopes []string, total int) map[string]int {
	out := make(map[string]int, len(scopes))
	if len(scopes) == 0 || total <= 0 {
		return out
	}

	c.mu.Lock()
	weights := make([]float64, len(scopes))
	var known, sum float64
	for i, s := range scopes {
		if n, ok := c.data[dataType][s]; ok {
			weights[i] = float64(n)
			sum += float64(n)
			known++
		} else {
			weights[i] = -1
		}
	}
	c.mu.Unlock()

	fill := 1.0
	if known > 0 && sum > 0 {
		fill = sum / known
	}
	sum = 0
	for i := range weights {
		if weights[i] < 0 {
			weights[i] = fill
		}
		sum += weights[i]
	}
	if sum == 0 {
		for i := range weights {
			weights[i] = 1
		}
		sum = float64(len(weights))
	}

	// Largest-remainder apportionment.
	type rem struct {
		idx  int
		frac float64
	}
	rems := make([]rem, len(scopes))
	assigned := 0
	for i, s := range scopes {
		exact := float64(total) * weights[i] / sum
		whole := int(math.Floor(exact))
		out[s] = whole
		assigned += whole
		rems[i] = rem{idx: i, frac: exact - float64(whole)}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for i := 0; assigned < total; i = (i + 1) % len(rems) {
		out[scopes[rems[i].idx]]++
		assigned++
	}
	return out
}

// Flush writes the file atomically if anything changed.
func (c *Counts) Flush() error {
	c.mu.Lock()
	if !c.dirty || c.path == "" {
		c.mu.Unlock()
		return nil
	}
	doc := make(map[string]map[string]any, len(c.data))
	for dataType, scopes := range c.data {
		m := make(map[string]any, len(scopes)+1)
		for s, n := range scopes {
			m[s] = n
		}
		if t, ok := c.updated[dataType]; ok {
			m[updatedKey] = t.Format(time.RFC3339)
		}
		doc[dataType] = m
	}
	c.dirty = false
	c.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal counts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create counts dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write counts: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace counts file: %w", err)
	}
	return nil
}
