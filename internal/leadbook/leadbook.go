// Package leadbook persists the leads a user has saved or imported.
package leadbook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Book is a JSON file of leads keyed by normalized street address.
type Book struct {
	path  string
	mu    sync.RWMutex
	leads []types.Lead
	index map[string]int
}

// ImportResult counts what an import did.
type ImportResult struct {
	Added   int `json:"added"`
	Merged  int `json:"merged"`
	Skipped int `json:"skipped"`
}

// Load opens the book at path. A missing file is an empty book.
func Load(path string) (*Book, error) {
	b := &Book{path: path, index: make(map[string]int)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("failed to read lead book: %w", err)
	}
	var leads []types.Lead
	if err := json.Unmarshal(data, &leads); err != nil {
		return nil, fmt.Errorf("failed to decode lead book %s: %w", path, err)
	}
	for _, l := range leads {
		b.add(l)
	}
	return b, nil
}

// add inserts or merges one lead. It reports whether the lead was new and
// whether it had a usable address at all.
func (b *Book) add(l types.Lead) (added, ok bool) {
	key := address.Key(l.Address)
	if key == "" {
		return false, false
	}
	if i, found := b.index[key]; found {
		b.leads[i].MergeNonNull(&l)
		return false, true
	}
	if l.ID == "" {
		l.ID = types.NewLeadID()
	}
	b.index[key] = len(b.leads)
	b.leads = append(b.leads, l.Clone())
	return true, true
}

// Import merges leads into the book and saves it. Leads at an address that
// is already saved only fill in non-empty fields.
func (b *Book) Import(leads []types.Lead) (ImportResult, error) {
	var res ImportResult
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range leads {
		added, ok := b.add(l)
		switch {
		case !ok:
			res.Skipped++
		case added:
			res.Added++
		default:
			res.Merged++
		}
	}
	if res.Added+res.Merged == 0 {
		return res, nil
	}
	return res, b.save()
}

// save writes the book through a temporary file so a crash never leaves a
// truncated book behind. Callers hold the write lock.
func (b *Book) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("failed to create lead book directory: %w", err)
	}
	data, err := json.MarshalIndent(b.leads, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode lead book: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write lead book: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("failed to replace lead book: %w", err)
	}
	return nil
}

// List returns copies of every saved lead in insertion order.
func (b *Book) List() []types.Lead {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Lead, len(b.leads))
	for i := range b.leads {
		out[i] = b.leads[i].Clone()
	}
	return out
}

// Get returns the lead saved at addr.
func (b *Book) Get(addr string) (types.Lead, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i, ok := b.index[address.Key(addr)]
	if !ok {
		return types.Lead{}, false
	}
	return b.leads[i].Clone(), true
}

// Len returns the number of saved leads.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.leads)
}
