package server

import (
	"net/http"

	"exproctor/pkg/types"
)

func (s *Service) handleGetQuizSettings(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathInt64(r, "quizID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	settings, err := s.settings.QuizSettings(r.Context(), quizID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Service) handlePutQuizSettings(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathInt64(r, "quizID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var settings = new(types.QuizSettings)
	if err := decodeBody(w, r, settings); err != nil {
		s.writeError(w, r, err)
		return
	}
	settings.QuizID = quizID

	if err := s.settings.UpsertQuizSettings(r.Context(), settings); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, settings)
}
