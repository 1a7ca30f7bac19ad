package poll

import "github.com/mdragan85/venuepoll/internal/model"

// mergeActive implements the sticky-reload rule from spec §4.3 step 2:
// instruments present in the new snapshot replace their old entry;
// instruments missing from the new snapshot are kept until their
// expiration passes, so a transient discovery gap doesn't stop polling.
func mergeActive(current, incoming model.ActiveSet, nowWallMs int64) model.ActiveSet {
	merged := make(model.ActiveSet, len(current)+len(incoming))

	for id, inst := range current {
		if _, stillPresent := incoming[id]; stillPresent {
			continue
		}
		if inst.Expiration <= nowWallMs {
			continue
		}
		merged[id] = inst
	}

	for id, inst := range incoming {
		if inst.Expiration <= nowWallMs {
			continue
		}
		merged[id] = inst
	}

	return merged
}

// selectEligible filters active to instruments the backoff table currently
// allows, then truncates to cap. Iteration order over a Go map is
// randomized, which is fine here: spec places no ordering requirement on
// eligibility selection, only on the cap.
func selectEligible(active model.ActiveSet, eligible func(instrumentID string) bool, cap int) []model.Instrument {
	var out []model.Instrument
	for id, inst := range active {
		if inst.PollKey == "" {
			continue
		}
		if !eligible(id) {
			continue
		}
		out = append(out, inst)
		if len(out) >= cap && cap > 0 {
			break
		}
	}
	return out
}
