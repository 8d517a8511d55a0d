package server

import (
	"net/http"

	"exproctor/pkg/types"

	"github.com/alexedwards/flow"
)

type userEvidenceQuery struct {
	AttemptID int64 `form:"attemptid"`
}

type deleteUserEvidenceResponse struct {
	Deleted int `json:"deleted"`
}

// quizPath reads the course and quiz ids shared by the report routes.
func quizPath(r *http.Request) (courseID, quizID int64, err error) {
	if courseID, err = pathInt64(r, "courseID"); err != nil {
		return 0, 0, err
	}
	if quizID, err = pathInt64(r, "quizID"); err != nil {
		return 0, 0, err
	}
	return courseID, quizID, nil
}

func (s *Service) handleGetQuizUsers(w http.ResponseWriter, r *http.Request) {
	courseID, quizID, err := quizPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summaries, err := s.report.DistinctByUser(r.Context(), courseID, quizID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Service) handleGetUserEvidence(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()

	courseID, quizID, err := quizPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	userID, err := pathInt64(r, "userID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var query userEvidenceQuery
	if err := decoder.Decode(&query, r.URL.Query()); err != nil {
		s.writeError(w, r, types.NewError(types.ErrValidation, "invalid query: %s", err))
		return
	}

	var views []types.EvidenceView
	if query.AttemptID > 0 {
		views, err = s.report.EvidenceByAttempt(ctx, types.AttemptKey{
			CourseID:  courseID,
			QuizID:    quizID,
			UserID:    userID,
			AttemptID: query.AttemptID,
		})
	} else {
		views, err = s.report.EvidenceByUser(ctx, courseID, quizID, userID)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, views)
}

func (s *Service) handleDeleteUserEvidence(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()

	courseID, quizID, err := quizPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	userID, err := pathInt64(r, "userID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	evidenceType, err := types.ParseEvidenceType(flow.Param(ctx, "evidenceType"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	deleted, err := s.retention.DeleteAllForUser(ctx, courseID, quizID, userID, evidenceType)
	if err != nil {
		s.logger.WithError(err).WithField("deleted", deleted).Error("failed to delete all user evidence")
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, deleteUserEvidenceResponse{Deleted: deleted})
}
