package scout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geometry"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/leadbook"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Autocomplete limits.
const (
	DefaultSuggestions = 10
	MaxSuggestions     = 25
)

// Service errors.
var (
	ErrNoSnapshot      = errors.New("parcel snapshot is not configured")
	ErrNoLeadBook      = errors.New("lead book is not configured")
	ErrInvalidSettings = errors.New("invalid settings")
)

// Import saves leads to the lead book and feeds their fields to the
// enrichment cache.
func (s *Service) Import(ctx context.Context, leads []types.Lead) (leadbook.ImportResult, error) {
	if s.book == nil {
		return leadbook.ImportResult{}, ErrNoLeadBook
	}
	if err := ctx.Err(); err != nil {
		return leadbook.ImportResult{}, err
	}
	res, err := s.book.Import(leads)
	if err != nil {
		return res, err
	}
	for i := range leads {
		s.cache.Save(&leads[i])
	}
	s.log.Info("leads imported", "added", res.Added, "merged", res.Merged, "skipped", res.Skipped)
	return res, nil
}

// SavedLeads lists the lead book.
func (s *Service) SavedLeads() []types.Lead {
	if s.book == nil {
		return nil
	}
	return s.book.List()
}

// Autocomplete suggests addresses and subdivision names. limit <= 0 uses
// the configured default; the result never exceeds MaxSuggestions.
func (s *Service) Autocomplete(ctx context.Context, query string, limit int) ([]geometry.Suggestion, error) {
	if limit <= 0 {
		limit = s.limits.AutocompleteLimit
	}
	if limit <= 0 {
		limit = DefaultSuggestions
	}
	limit = min(limit, MaxSuggestions)
	out, err := s.resolver.Suggest(ctx, query, limit)
	if err != nil {
		return out, fmt.Errorf("failed to suggest %q: %w", query, err)
	}
	if out == nil {
		out = []geometry.Suggestion{}
	}
	return out, nil
}

// Settings are the runtime-adjustable knobs.
type Settings struct {
	LogLevel     string `json:"log_level"`
	DefaultLimit int    `json:"default_limit"`
}

// Settings returns the current settings.
func (s *Service) Settings() Settings {
	return Settings{LogLevel: s.log.Level(), DefaultLimit: s.DefaultLimit()}
}

// UpdateSettings applies the non-zero fields of u.
func (s *Service) UpdateSettings(u Settings) (Settings, error) {
	if u.LogLevel != "" {
		switch strings.ToLower(u.LogLevel) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return s.Settings(), fmt.Errorf("%w: unknown log level %q", ErrInvalidSettings, u.LogLevel)
		}
	}
	if u.DefaultLimit < 0 || u.DefaultLimit > types.MaxLimit {
		return s.Settings(), fmt.Errorf("%w: default_limit must be between 1 and %d", ErrInvalidSettings, types.MaxLimit)
	}
	if u.LogLevel != "" {
		s.log.SetLevel(u.LogLevel)
	}
	if u.DefaultLimit > 0 {
		s.defaultLimit.Store(int64(u.DefaultLimit))
	}
	cur := s.Settings()
	s.log.Info("settings updated", "log_level", cur.LogLevel, "default_limit", cur.DefaultLimit)
	return cur, nil
}
