// Package curriculum defines the canonical learning-content model: stages,
// their exercises, and the explicit unlock rules between them.
//
// The canonical definition set is fixed at load time, either from an embedded
// default or from a YAML file referenced in the service configuration. Runtime
// state (which stages are unlocked or completed) lives in the progress store;
// this package only describes shape and content.
package curriculum

import (
	"errors"
	"fmt"
)

// Category distinguishes sequential main stages from rule-unlocked seminars.
type Category string

const (
	// CategoryMain stages unlock strictly in definition order: completing one
	// unlocks the next main stage.
	CategoryMain Category = "main"

	// CategorySeminar stages unlock only through an explicit [Rule], never by
	// sequential adjacency.
	CategorySeminar Category = "seminar"
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	return c == CategoryMain || c == CategorySeminar
}

// Difficulty grades an exercise.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyExpert       Difficulty = "expert"
)

// IsValid reports whether d is a known difficulty.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced, DifficultyExpert:
		return true
	}
	return false
}

// Stage is one step in the curriculum. Content fields are canonical and never
// mutated at runtime; Locked and Completed are the only fields that carry user
// state and the only fields the progress store ever changes.
type Stage struct {
	// ID is the stable stage identifier, e.g. "1" or "sem_egr_1".
	ID string `yaml:"id" json:"id"`

	// Level is the display ordinal. May be hierarchical ("5.1") or symbolic ("E1").
	Level string `yaml:"level" json:"level"`

	// Category is "main" or "seminar".
	Category Category `yaml:"category" json:"category"`

	// Title and Subtitle are the display headings.
	Title    string `yaml:"title" json:"title"`
	Subtitle string `yaml:"subtitle" json:"subtitle"`

	// Description is the long-form stage introduction.
	Description string `yaml:"description" json:"description"`

	// Locked reports whether the stage's exercises and studio are inaccessible.
	Locked bool `yaml:"-" json:"locked"`

	// Completed reports whether the user finished the stage. One-way: there is
	// no un-complete path for stages.
	Completed bool `yaml:"-" json:"completed"`
}

// DisplayTitle is the "Title: Subtitle" heading captured into history snapshots.
func (s Stage) DisplayTitle() string {
	if s.Subtitle == "" {
		return s.Title
	}
	return s.Title + ": " + s.Subtitle
}

// Exercise is an individual practice item belonging to exactly one stage.
// Exercises are immutable after load; completion membership is tracked in the
// progress store's completion set, not on the exercise itself.
type Exercise struct {
	// ID is the stable exercise identifier, e.g. "ex_1_1".
	ID string `yaml:"id" json:"id"`

	// StageID is the owning stage. An exercise never changes stage.
	StageID string `yaml:"stage_id" json:"stageId"`

	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`

	// Difficulty is one of beginner, intermediate, advanced, expert.
	Difficulty Difficulty `yaml:"difficulty" json:"difficulty"`
}

// Concept is a visual building block the media studio offers for its owning
// stage. Title is the toggle label shown to the user; Prompt is the fragment
// appended to the generation prompt when the concept is enabled.
type Concept struct {
	// ID is the stable concept identifier, e.g. "c_1_shell".
	ID string `yaml:"id" json:"id"`

	// StageID is the stage whose studio offers this concept.
	StageID string `yaml:"stage_id" json:"stageId"`

	Title  string `yaml:"title" json:"title"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// Rule is an explicit unlock edge: when the prerequisite stage is completed
// and the dependent stage is still locked, the dependent unlocks.
type Rule struct {
	PrerequisiteID string `yaml:"prerequisite" json:"prerequisite"`
	DependentID    string `yaml:"dependent" json:"dependent"`
}

// Definitions is the full canonical content set.
type Definitions struct {
	// EntryStageID is the one stage that starts unlocked. Empty means the
	// first stage in definition order.
	EntryStageID string `yaml:"entry_stage" json:"entryStage"`

	Stages    []Stage    `yaml:"stages" json:"stages"`
	Exercises []Exercise `yaml:"exercises" json:"exercises"`
	Concepts  []Concept  `yaml:"concepts" json:"concepts"`

	// Rules are the explicit seminar unlock edges. Sequential main-stage
	// unlocking is implied by stage order and not listed here.
	Rules []Rule `yaml:"rules" json:"rules"`
}

// Validate checks the definition set for internal consistency. It returns a
// joined error describing every violation found, or nil if the set is valid.
func (d *Definitions) Validate() error {
	var errs []error

	if len(d.Stages) == 0 {
		errs = append(errs, errors.New("curriculum: at least one stage is required"))
	}

	stageIDs := make(map[string]struct{}, len(d.Stages))
	for i, s := range d.Stages {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("curriculum: stage %d has empty id", i))
			continue
		}
		if _, dup := stageIDs[s.ID]; dup {
			errs = append(errs, fmt.Errorf("curriculum: duplicate stage id %q", s.ID))
		}
		stageIDs[s.ID] = struct{}{}
		if !s.Category.IsValid() {
			errs = append(errs, fmt.Errorf("curriculum: stage %q has unknown category %q", s.ID, s.Category))
		}
		if s.Title == "" {
			errs = append(errs, fmt.Errorf("curriculum: stage %q has empty title", s.ID))
		}
	}

	exerciseIDs := make(map[string]struct{}, len(d.Exercises))
	for i, ex := range d.Exercises {
		if ex.ID == "" {
			errs = append(errs, fmt.Errorf("curriculum: exercise %d has empty id", i))
			continue
		}
		if _, dup := exerciseIDs[ex.ID]; dup {
			errs = append(errs, fmt.Errorf("curriculum: duplicate exercise id %q", ex.ID))
		}
		exerciseIDs[ex.ID] = struct{}{}
		if _, ok := stageIDs[ex.StageID]; !ok {
			errs = append(errs, fmt.Errorf("curriculum: exercise %q references unknown stage %q", ex.ID, ex.StageID))
		}
		if !ex.Difficulty.IsValid() {
			errs = append(errs, fmt.Errorf("curriculum: exercise %q has unknown difficulty %q", ex.ID, ex.Difficulty))
		}
	}

	conceptIDs := make(map[string]struct{}, len(d.Concepts))
	for i, c := range d.Concepts {
		if c.ID == "" {
			errs = append(errs, fmt.Errorf("curriculum: concept %d has empty id", i))
			continue
		}
		if _, dup := conceptIDs[c.ID]; dup {
			errs = append(errs, fmt.Errorf("curriculum: duplicate concept id %q", c.ID))
		}
		conceptIDs[c.ID] = struct{}{}
		if _, ok := stageIDs[c.StageID]; !ok {
			errs = append(errs, fmt.Errorf("curriculum: concept %q references unknown stage %q", c.ID, c.StageID))
		}
		if c.Prompt == "" {
			errs = append(errs, fmt.Errorf("curriculum: concept %q has empty prompt", c.ID))
		}
	}

	for _, r := range d.Rules {
		if _, ok := stageIDs[r.PrerequisiteID]; !ok {
			errs = append(errs, fmt.Errorf("curriculum: rule references unknown prerequisite stage %q", r.PrerequisiteID))
		}
		if _, ok := stageIDs[r.DependentID]; !ok {
			errs = append(errs, fmt.Errorf("curriculum: rule references unknown dependent stage %q", r.DependentID))
		}
		if r.PrerequisiteID == r.DependentID {
			errs = append(errs, fmt.Errorf("curriculum: rule on stage %q depends on itself", r.DependentID))
		}
	}

	if d.EntryStageID != "" {
		if _, ok := stageIDs[d.EntryStageID]; !ok {
			errs = append(errs, fmt.Errorf("curriculum: entry_stage %q is not a defined stage", d.EntryStageID))
		}
	}

	return errors.Join(errs...)
}

// entryID resolves the designated entry stage, defaulting to the first stage.
func (d *Definitions) entryID() string {
	if d.EntryStageID != "" {
		return d.EntryStageID
	}
	if len(d.Stages) > 0 {
		return d.Stages[0].ID
	}
	return ""
}

// Seed returns a fresh runtime stage list: canonical content with default
// flags, every stage locked except the entry stage, nothing completed.
func (d *Definitions) Seed() []Stage {
	entry := d.entryID()
	out := make([]Stage, len(d.Stages))
	for i, s := range d.Stages {
		s.Locked = s.ID != entry
		s.Completed = false
		out[i] = s
	}
	return out
}

// StageByID returns the canonical stage definition, or false if unknown.
func (d *Definitions) StageByID(id string) (Stage, bool) {
	for _, s := range d.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// ExerciseByID returns the exercise definition, or false if unknown.
func (d *Definitions) ExerciseByID(id string) (Exercise, bool) {
	for _, ex := range d.Exercises {
		if ex.ID == id {
			return ex, true
		}
	}
	return Exercise{}, false
}

// ExercisesForStage returns the exercises owned by the given stage, in
// definition order.
func (d *Definitions) ExercisesForStage(stageID string) []Exercise {
	var out []Exercise
	for _, ex := range d.Exercises {
		if ex.StageID == stageID {
			out = append(out, ex)
		}
	}
	return out
}

// ConceptByID returns the concept definition, or false if unknown.
func (d *Definitions) ConceptByID(id string) (Concept, bool) {
	for _, c := range d.Concepts {
		if c.ID == id {
			return c, true
		}
	}
	return Concept{}, false
}

// ConceptsForStage returns the studio concepts offered by the given stage, in
// definition order.
func (d *Definitions) ConceptsForStage(stageID string) []Concept {
	var out []Concept
	for _, c := range d.Concepts {
		if c.StageID == stageID {
			out = append(out, c)
		}
	}
	return out
}

// Vocabulary returns every stage and exercise title. The live transcript
// corrector uses this as its phonetic reference set.
func (d *Definitions) Vocabulary() []string {
	out := make([]string, 0, len(d.Stages)+len(d.Exercises))
	for _, s := range d.Stages {
		out = append(out, s.Title)
	}
	for _, ex := range d.Exercises {
		out = append(out, ex.Title)
	}
	return out
}
