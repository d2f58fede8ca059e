package geometry

import (
	"context"
	"errors"
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/fanout"
)

// Suggestion kinds.
const (
	SuggestAddress     = "address"
	SuggestSubdivision = "subdivision"
)

// Suggestion is one autocomplete match.
type Suggestion struct {
	Text string `json:"text"`
	Kind string `json:"type"`
	Zip  string `json:"zip,omitempty"`
	City string `json:"city,omitempty"`
}

// Suggest returns up to limit addresses and subdivision names starting with
// prefix. Addresses come first.
func (r *Resolver) Suggest(ctx context.Context, prefix string, limit int) ([]Suggestion, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < 2 || limit <= 0 {
		return nil, nil
	}

	type source struct {
		layer, field, kind string
		fields             []string
		distinct           bool
	}
	sources := []source{
		{r.layers.Address, FieldAddress, SuggestAddress, []string{FieldAddress, FieldZipCode, FieldZipCity}, false},
		{r.layers.Subdivision, FieldSubdivision, SuggestSubdivision, []string{FieldSubdivision}, true},
	}
	outs := fanout.Gather(ctx, sources, fanout.Options{}, func(ctx context.Context, s source) ([]Suggestion, error) {
		if s.layer == "" {
			return nil, nil
		}
		fs, err := r.gis.Query(ctx, s.layer, arcgis.Query{
			Where:       arcgis.LikePrefix(s.field, prefix),
			OutFields:   s.fields,
			Distinct:    s.distinct,
			RecordCount: limit,
			OrderBy:     s.field,
		})
		if err != nil {
			return nil, err
		}
		var out []Suggestion
		for _, f := range fs.Features {
			text := arcgis.String(f.Attributes, s.field)
			if text == "" {
				continue
			}
			out = append(out, Suggestion{
				Text: text,
				Kind: s.kind,
				Zip:  arcgis.String(f.Attributes, FieldZipCode),
				City: arcgis.String(f.Attributes, FieldZipCity),
			})
		}
		return out, nil
	})

	byKind := map[string][]Suggestion{}
	var errs []error
	for _, o := range outs {
		if o.Err != nil {
			errs = append(errs, o.Err)
			continue
		}
		byKind[sources[o.Index].kind] = o.Value
	}
	if len(errs) == len(sources) {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		r.log.Warn("autocomplete source failed", "err", err)
	}

	seen := map[string]bool{}
	var out []Suggestion
	for _, kind := range []string{SuggestAddress, SuggestSubdivision} {
		for _, s := range byKind[kind] {
			key := kind + "|" + strings.ToUpper(s.Text)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}
