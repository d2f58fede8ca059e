package assemble

import (
	"fmt"
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// DedupeKey identifies a property: its parcel id when known, otherwise its
// normalized street line, otherwise its rounded point.
func DedupeKey(l *types.Lead) string {
	if id := parcelKey(l); id != "" {
		return "parcel:" + id
	}
	if k := address.Key(l.Address); k != "" {
		return "address:" + k
	}
	return fallbackKey(l)
}

func parcelKey(l *types.Lead) string {
	return strings.ToUpper(strings.TrimSpace(l.ParcelID))
}

func fallbackKey(l *types.Lead) string {
	if lat, lon, ok := l.Point(); ok {
		k := geo.RoundKey(lat, lon, 6)
		return fmt.Sprintf("point:%d,%d", k[0], k[1])
	}
	return "id:" + l.ID
}

// Two leads are the same property when their parcel ids match, or when
// their street lines match and at least one has no parcel id. Units of one
// building share a street line but carry distinct parcel ids.

// Seen records the properties already in a pool.
type Seen struct {
	parcels map[string]bool
	// streets holds every street key; bare only those of leads without a
	// parcel id.
	streets map[string]bool
	bare    map[string]bool
	other   map[string]bool
}

// NewSeen returns an empty set.
func NewSeen() *Seen {
	return &Seen{
		parcels: make(map[string]bool),
		streets: make(map[string]bool),
		bare:    make(map[string]bool),
		other:   make(map[string]bool),
	}
}

// Add records l.
func (s *Seen) Add(l *types.Lead) {
	pk, ak := parcelKey(l), address.Key(l.Address)
	if pk != "" {
		s.parcels[pk] = true
	}
	if ak != "" {
		s.streets[ak] = true
		if pk == "" {
			s.bare[ak] = true
		}
	}
	if pk == "" && ak == "" {
		s.other[fallbackKey(l)] = true
	}
}

// Has reports whether l is a property already recorded.
func (s *Seen) Has(l *types.Lead) bool {
	pk, ak := parcelKey(l), address.Key(l.Address)
	switch {
	case pk != "" && s.parcels[pk]:
		return true
	case ak != "" && s.bare[ak]:
		return true
	case pk == "" && ak != "" && s.streets[ak]:
		return true
	case pk == "" && ak == "":
		return s.other[fallbackKey(l)]
	}
	return false
}

type group struct {
	lead *types.Lead
	dead bool
}

// merger folds leads describing the same property into one copy.
type merger struct {
	groups   []*group
	byParcel map[string]*group
	byStreet map[string][]*group
	byOther  map[string]*group
}

func newMerger(n int) *merger {
	return &merger{
		groups:   make([]*group, 0, n),
		byParcel: make(map[string]*group, n),
		byStreet: make(map[string][]*group, n),
		byOther:  make(map[string]*group),
	}
}

func (m *merger) add(l *types.Lead) {
	pk, ak := parcelKey(l), address.Key(l.Address)

	var hits []*group
	if g := m.byParcel[pk]; pk != "" && g != nil {
		hits = append(hits, g)
	}
	if ak != "" {
		for _, g := range m.byStreet[ak] {
			if g.dead || containsGroup(hits, g) {
				continue
			}
			gp := parcelKey(g.lead)
			if pk == "" || gp == "" {
				hits = append(hits, g)
				if pk == "" {
					break
				}
			}
		}
	}
	if pk == "" && ak == "" {
		if g := m.byOther[fallbackKey(l)]; g != nil {
			hits = append(hits, g)
		}
	}

	if len(hits) == 0 {
		c := l.Clone()
		g := &group{lead: &c}
		m.groups = append(m.groups, g)
		m.index(g)
		return
	}
	dst := hits[0]
	dst.lead.FillMissing(l)
	for _, g := range hits[1:] {
		dst.lead.FillMissing(g.lead)
		g.dead = true
	}
	m.index(dst)
}

func (m *merger) index(g *group) {
	pk, ak := parcelKey(g.lead), address.Key(g.lead.Address)
	if pk != "" {
		m.byParcel[pk] = g
	}
	if ak != "" && !containsGroup(m.byStreet[ak], g) {
		m.byStreet[ak] = append(m.byStreet[ak], g)
	}
	if pk == "" && ak == "" {
		m.byOther[fallbackKey(g.lead)] = g
	}
}

// leads returns the surviving copies keyed by DedupeKey.
func (m *merger) leads() map[string]*types.Lead {
	out := make(map[string]*types.Lead, len(m.groups))
	for _, g := range m.groups {
		if g.dead {
			continue
		}
		k := DedupeKey(g.lead)
		if prev, ok := out[k]; ok {
			prev.FillMissing(g.lead)
			continue
		}
		out[k] = g.lead
	}
	return out
}

func containsGroup(gs []*group, g *group) bool {
	for _, x := range gs {
		if x == g {
			return true
		}
	}
	return false
}
