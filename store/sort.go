package store

import (
	"slices"
	"strings"
)

// MatchFilters reports whether values satisfy every filter. Clients that
// filter on their side use it so all backends agree on comparison rules.
func MatchFilters(values Values, filters []Filter) (bool, error) {
	for _, f := range filters {
		ok, err := f.Match(values[f.Field])
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// SortEntities orders entities by the OrderBy specs, breaking ties by id.
// With no specs the order is by id alone.
func SortEntities(entities []*Entity, orderBy []string) error {
	var firstErr error
	slices.SortStableFunc(entities, func(a, b *Entity) int {
		for _, spec := range orderBy {
			name, desc := OrderField(spec)
			av, _ := a.Get(name)
			bv, _ := b.Get(name)
			c, err := Compare(av, bv)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.ID(), b.ID())
	})
	return firstErr
}
