package types

import "time"

// QuizSettings is the per-quiz proctoring configuration the capture client reads
// before it starts taking pictures.
type QuizSettings struct {
	QuizID             int64     `db:"quiz_id" json:"quizId"`
	WebcamRequired     bool      `db:"webcam_required" json:"webcamRequired" form:"webcamrequired"`
	ScreenRequired     bool      `db:"screen_required" json:"screenRequired" form:"screenrequired"`
	ScreenshotDelaySec int       `db:"screenshot_delay_sec" json:"screenshotDelaySec" form:"screenshotdelay"`
	ScreenshotWidth    int       `db:"screenshot_width" json:"screenshotWidth" form:"screenshotwidth"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time `db:"updated_at" json:"updatedAt"`
}

const (
	MinScreenshotDelaySec  = 5
	MaxScreenshotDelaySec  = 30
	DefaultScreenshotWidth = 230
)

func (q *QuizSettings) Enabled(t EvidenceType) bool {
	switch t {
	case EvidenceTypeWebcam:
		return q.WebcamRequired
	case EvidenceTypeScreen:
		return q.ScreenRequired
	}
	return false
}

// Validate fills defaults and checks the delay is one of 5, 10, ..., 30 seconds.
func (q *QuizSettings) Validate() error {
	if q.QuizID <= 0 {
		return NewError(ErrValidation, "quizid is required")
	}
	if q.ScreenshotDelaySec == 0 {
		q.ScreenshotDelaySec = MinScreenshotDelaySec
	}
	if q.ScreenshotDelaySec < MinScreenshotDelaySec || q.ScreenshotDelaySec > MaxScreenshotDelaySec || q.ScreenshotDelaySec%5 != 0 {
		return NewError(ErrValidation, "screenshot delay must be a multiple of 5 between %d and %d seconds", MinScreenshotDelaySec, MaxScreenshotDelaySec)
	}
	if q.ScreenshotWidth == 0 {
		q.ScreenshotWidth = DefaultScreenshotWidth
	}
	if q.ScreenshotWidth < 0 {
		return NewError(ErrValidation, "screenshot width must be positive")
	}
	return nil
}
