package enrich

import (
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/adapters"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Derive fills the values computed from other fields: the type name and
// guest-house flag from the use code, pool and garage from listing remarks.
// Known values are never replaced.
func Derive(l *types.Lead) {
	if code := l.PropertyUseCode; code != "" {
		if l.PropertyType == "" {
			l.PropertyType = types.PropertyTypeName(code)
		}
		if l.HasGuestHouse == nil {
			l.HasGuestHouse = types.Bool(types.IsGuestHouseCode(code))
		}
	}
	if l.Description == "" {
		return
	}
	if l.HasPool == nil {
		l.HasPool = adapters.PoolFromText(l.Description)
	}
	if l.HasGarage == nil {
		l.HasGarage = adapters.GarageFromParking(nil, l.Description)
	}
}
