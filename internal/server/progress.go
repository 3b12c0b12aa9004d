package server

import (
	"net/http"
	"strings"

	"github.com/deirlabs/mentord/internal/curriculum"
)

// stageView is one stage plus its exercises and completion ratio.
type stageView struct {
	curriculum.Stage
	Exercises []exerciseView `json:"exercises"`
	Percent   float64        `json:"percent"`
	Active    bool           `json:"active"`
}

// exerciseView is one exercise plus its completion flag.
type exerciseView struct {
	curriculum.Exercise
	Completed bool `json:"completed"`
}

// handleStages returns all stages with per-exercise completion state.
func (s *Server) handleStages(w http.ResponseWriter, _ *http.Request) {
	active := s.cfg.Store.ActiveStage()

	stages := s.cfg.Store.Stages()
	views := make([]stageView, 0, len(stages))
	for _, st := range stages {
		exercises := s.cfg.Definitions.ExercisesForStage(st.ID)
		exViews := make([]exerciseView, 0, len(exercises))
		for _, ex := range exercises {
			exViews = append(exViews, exerciseView{
				Exercise:  ex,
				Completed: s.cfg.Store.IsExerciseCompleted(ex.ID),
			})
		}
		views = append(views, stageView{
			Stage:     st,
			Exercises: exViews,
			Percent:   s.cfg.Store.StagePercent(st.ID),
			Active:    st.ID == active.ID,
		})
	}

	s.writeJSON(w, http.StatusOK, views)
}

// handleCompleteStage marks a stage completed and returns the refreshed
// stage list so the client sees newly unlocked stages in one round trip.
func (s *Server) handleCompleteStage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.cfg.Store.CompleteStage(r.Context(), id); err != nil {
		s.logger.Error("complete stage", "stage_id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "complete stage failed")
		return
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordStageCompletion(r.Context(), id)
	}

	s.handleStages(w, r)
}

// handleToggleExercise flips one exercise's completion flag.
func (s *Server) handleToggleExercise(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	completed, err := s.cfg.Store.ToggleExercise(r.Context(), id)
	if err != nil {
		s.logger.Error("toggle exercise", "exercise_id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "toggle exercise failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"completed": completed,
	})
}

// userPayload is the stub-auth identity persisted with progression state.
type userPayload struct {
	User     string `json:"user"`
	Username string `json:"username"`
}

func (s *Server) handleGetUser(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, userPayload{
		User:     s.cfg.Store.User(),
		Username: s.cfg.Store.Username(),
	})
}

func (s *Server) handleSetUser(w http.ResponseWriter, r *http.Request) {
	var p userPayload
	if !s.readJSON(w, r, &p) {
		return
	}
	if strings.TrimSpace(p.Username) == "" {
		s.writeError(w, http.StatusBadRequest, "username must not be empty")
		return
	}

	if err := s.cfg.Store.SetUser(r.Context(), p.User, p.Username); err != nil {
		s.logger.Error("set user", "err", err)
		s.writeError(w, http.StatusInternalServerError, "set user failed")
		return
	}

	s.writeJSON(w, http.StatusOK, userPayload{
		User:     s.cfg.Store.User(),
		Username: s.cfg.Store.Username(),
	})
}

// handleHistory returns all recorded exchanges in append order.
func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.History.Items())
}
