package server

import (
	"net/http"

	"exproctor/pkg/types"

	"github.com/alexedwards/flow"
)

type attemptBody struct {
	CourseID  int64 `json:"courseid" form:"courseid"`
	QuizID    int64 `json:"quizid" form:"quizid"`
	UserID    int64 `json:"userid" form:"userid"`
	AttemptID int64 `json:"attemptid" form:"attemptid"`
}

func (b attemptBody) key() types.AttemptKey {
	return types.AttemptKey{
		CourseID:  b.CourseID,
		QuizID:    b.QuizID,
		UserID:    b.UserID,
		AttemptID: b.AttemptID,
	}
}

// evidenceBody accepts the image under payload or under the field name the
// capture client uses for the evidence type.
type evidenceBody struct {
	CourseID   int64  `json:"courseid" form:"courseid"`
	QuizID     int64  `json:"quizid" form:"quizid"`
	UserID     int64  `json:"userid" form:"userid"`
	AttemptID  int64  `json:"attemptid" form:"attemptid"`
	Payload    string `json:"payload" form:"payload"`
	Webcamshot string `json:"webcamshot" form:"webcamshot"`
	Screenshot string `json:"screenshot" form:"screenshot"`
	BucketName string `json:"bucketname" form:"bucketname"`
}

func (b *evidenceBody) key() types.AttemptKey {
	return attemptBody{
		CourseID:  b.CourseID,
		QuizID:    b.QuizID,
		UserID:    b.UserID,
		AttemptID: b.AttemptID,
	}.key()
}

func (b *evidenceBody) payload() string {
	switch {
	case b.Payload != "":
		return b.Payload
	case b.Webcamshot != "":
		return b.Webcamshot
	}
	return b.Screenshot
}

type finishResponse struct {
	Marked bool `json:"marked"`
}

func (s *Service) handlePostEvidence(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()

	evidenceType, err := types.ParseEvidenceType(flow.Param(ctx, "evidenceType"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body = new(evidenceBody)
	if err := decodeBody(w, r, body); err != nil {
		s.writeError(w, r, err)
		return
	}

	req := &types.SubmitRequest{
		AttemptKey:    attemptKey(ctx, body.key()),
		EvidenceType:  evidenceType,
		Payload:       body.payload(),
		ContainerHint: body.BucketName,
	}

	result, err := s.intake.Submit(ctx, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Service) handlePostAttemptFinish(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()

	var body = new(attemptBody)
	if err := decodeBody(w, r, body); err != nil {
		s.writeError(w, r, err)
		return
	}

	marked, err := s.intake.MarkQuizFinished(ctx, attemptKey(ctx, body.key()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, finishResponse{Marked: marked})
}

func (s *Service) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	view, err := s.report.EvidenceURL(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, view)
}

func (s *Service) handleDeleteEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.retention.DeleteEvidence(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
