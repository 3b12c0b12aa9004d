package history

import (
	"context"
	"log/slog"

	"github.com/deirlabs/mentord/internal/curriculum"
	"github.com/deirlabs/mentord/internal/progress"
)

// Recorder turns a finished question/answer exchange into a history entry,
// resolving the stage context at the moment of capture.
//
// Resolution order: when an exercise ID is given, the exchange belongs to the
// exercise's owning stage; otherwise it is attributed to the most recently
// unlocked stage; if even that fails, the first canonical stage is used. A
// finished exchange is always recorded somewhere.
type Recorder struct {
	defs   *curriculum.Definitions
	store  *progress.Store
	log    *Log
	logger *slog.Logger
}

// NewRecorder wires a Recorder over the progress store and history log.
func NewRecorder(defs *curriculum.Definitions, store *progress.Store, log *Log, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		defs:   defs,
		store:  store,
		log:    log,
		logger: logger.With("component", "recorder"),
	}
}

// RecordExchange appends one history item for the exchange. exerciseID may be
// empty for general conversation. Persistence failures are logged, not
// returned: a lost history line must never fail the exchange that produced it.
func (r *Recorder) RecordExchange(ctx context.Context, question, answer, exerciseID string) Item {
	item := Item{
		Question: question,
		Answer:   answer,
		Mode:     ModeGeneral,
	}

	if exerciseID != "" {
		if ex, ok := r.defs.ExerciseByID(exerciseID); ok {
			item.Mode = ModeExercise
			item.ExerciseTitle = ex.Title
			if stage, ok := r.defs.StageByID(ex.StageID); ok {
				item.StageID = stage.ID
				item.StageTitle = stage.DisplayTitle()
			}
		}
	}

	if item.StageID == "" {
		stage := r.store.ActiveStage()
		if stage.ID == "" && len(r.defs.Stages) > 0 {
			stage = r.defs.Stages[0]
		}
		item.StageID = stage.ID
		item.StageTitle = stage.DisplayTitle()
	}

	recorded, err := r.log.Append(ctx, item)
	if err != nil {
		r.logger.Error("failed to persist history item", "stage", item.StageID, "error", err)
		return item
	}
	return recorded
}
