package globalize

import (
	"strata/internal/errors"
	"strata/internal/ir"
)

// CheckAliasFreedom verifies that no two storage cells start out sharing a
// non-primitive value. Existing module cells take part in the comparison. Every
// sharing pair is reported.
func CheckAliasFreedom(m *ir.Module, a *Analysis) error {
	var errs errors.List
	owners := make(map[*ir.Value][]string)

	for _, g := range m.Globals {
		if g.Init != nil && !ir.IsPrimitive(g.Init.Type) {
			owners[g.Init] = append(owners[g.Init], g.Name)
		}
	}

	for _, c := range a.Cells {
		init := c.Slot.Init
		if init == nil || ir.IsPrimitive(init.Type) {
			continue
		}
		for _, first := range owners[init] {
			errs.Add(errors.AliasedSlots(first, c.Name, objectLoc(c.Object)))
		}
		owners[init] = append(owners[init], c.Name)
	}
	return errs.Err()
}
