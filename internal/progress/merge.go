package progress

import "github.com/deirlabs/mentord/internal/curriculum"

// Merge combines persisted stage flags with the canonical definition set.
//
// For every canonical stage, if the persisted snapshot contains a matching ID
// the result carries the canonical content with the persisted Locked and
// Completed flags; otherwise the canonical default applies (locked unless it
// is the entry stage). Persisted stages with no canonical counterpart are
// dropped: the definition set is the source of truth for shape, so removed
// content disappears on the next load.
func Merge(persisted []StageState, defs *curriculum.Definitions) []curriculum.Stage {
	byID := make(map[string]StageState, len(persisted))
	for _, p := range persisted {
		byID[p.ID] = p
	}

	stages := defs.Seed()
	for i := range stages {
		if p, ok := byID[stages[i].ID]; ok {
			stages[i].Locked = p.Locked
			stages[i].Completed = p.Completed
		}
	}
	return stages
}

// unlockPass applies every rule whose prerequisite is completed and whose
// dependent is still locked, flipping the dependent's Locked flag to false.
// It mutates stages in place and reports whether anything changed.
//
// The pass is idempotent: running it against an already-consistent state
// changes nothing, so callers can skip persistence when it returns false. It
// only ever clears Locked; Completed is never touched here.
func unlockPass(stages []curriculum.Stage, rules []curriculum.Rule) bool {
	idx := make(map[string]int, len(stages))
	for i, s := range stages {
		idx[s.ID] = i
	}

	changed := false
	for _, r := range rules {
		pi, ok := idx[r.PrerequisiteID]
		if !ok {
			continue
		}
		di, ok := idx[r.DependentID]
		if !ok {
			continue
		}
		if stages[pi].Completed && stages[di].Locked {
			stages[di].Locked = false
			changed = true
		}
	}
	return changed
}

// sequentialRules generates the implied main-stage adjacency rules: completing
// a stage unlocks its immediate successor in definition order, but only when
// that successor is a main-category stage. Seminars are unlocked exclusively
// by the explicit rule table.
func sequentialRules(stages []curriculum.Stage) []curriculum.Rule {
	var rules []curriculum.Rule
	for i := 0; i+1 < len(stages); i++ {
		if stages[i+1].Category != curriculum.CategoryMain {
			continue
		}
		rules = append(rules, curriculum.Rule{
			PrerequisiteID: stages[i].ID,
			DependentID:    stages[i+1].ID,
		})
	}
	return rules
}
