package moderation

import (
	"context"
	"io"
	"testing"

	"exproctor/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rtypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	labels   []string
	faces    []rtypes.FaceDetail
	labelErr error
	faceErr  error
}

func (d *fakeDetector) DetectLabels(ctx context.Context, in *rekognition.DetectLabelsInput, _ ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error) {
	if d.labelErr != nil {
		return nil, d.labelErr
	}
	out := &rekognition.DetectLabelsOutput{}
	for _, l := range d.labels {
		out.Labels = append(out.Labels, rtypes.Label{Name: aws.String(l)})
	}
	return out, nil
}

func (d *fakeDetector) DetectFaces(ctx context.Context, in *rekognition.DetectFacesInput, _ ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
	if d.faceErr != nil {
		return nil, d.faceErr
	}
	return &rekognition.DetectFacesOutput{FaceDetails: d.faces}, nil
}

func face(eyesOpen bool, eyesConfidence float32, mouthOpen bool) rtypes.FaceDetail {
	return rtypes.FaceDetail{
		EyesOpen:  &rtypes.EyeOpen{Value: eyesOpen, Confidence: aws.Float32(eyesConfidence)},
		MouthOpen: &rtypes.MouthOpen{Value: mouthOpen, Confidence: aws.Float32(99)},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestFaceAndObject_ShouldPersist(t *testing.T) {
	tests := []struct {
		name     string
		detector *fakeDetector
		want     bool
	}{
		{"clean frame", &fakeDetector{labels: []string{"Person"}, faces: []rtypes.FaceDetail{face(true, 99, false)}}, false},
		{"phone", &fakeDetector{labels: []string{"Person", "Mobile Phone"}, faces: []rtypes.FaceDetail{face(true, 99, false)}}, true},
		{"cell phone", &fakeDetector{labels: []string{"Cell Phone"}, faces: []rtypes.FaceDetail{face(true, 99, false)}}, true},
		{"no face", &fakeDetector{}, true},
		{"two faces", &fakeDetector{faces: []rtypes.FaceDetail{face(true, 99, false), face(true, 99, false)}}, true},
		{"eyes closed", &fakeDetector{faces: []rtypes.FaceDetail{face(false, 99, false)}}, true},
		{"low eye confidence", &fakeDetector{faces: []rtypes.FaceDetail{face(true, 80, false)}}, true},
		{"mouth open", &fakeDetector{faces: []rtypes.FaceDetail{face(true, 99, true)}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFaceAndObject(tt.detector, quietLogger())
			got, err := f.ShouldPersist(context.Background(), []byte("png"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFaceAndObject_DetectorFailure(t *testing.T) {
	f := NewFaceAndObject(&fakeDetector{
		faces:    []rtypes.FaceDetail{face(true, 99, false)},
		labelErr: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
	}, quietLogger())

	_, err := f.ShouldPersist(context.Background(), []byte("png"))
	assert.ErrorIs(t, err, types.ErrModeration)
	assert.Contains(t, err.Error(), "ThrottlingException")
}

func TestFaceAndObject_Deadline(t *testing.T) {
	f := NewFaceAndObject(&fakeDetector{faceErr: context.DeadlineExceeded}, quietLogger())

	_, err := f.ShouldPersist(context.Background(), []byte("png"))
	assert.ErrorIs(t, err, types.ErrTimeout)
}

func TestGate(t *testing.T) {
	g := NewGate(AlwaysPersist{}, types.EvidenceTypeWebcam)
	assert.True(t, g.Applies(types.EvidenceTypeWebcam))
	assert.False(t, g.Applies(types.EvidenceTypeScreen))

	var disabled *Gate
	assert.False(t, disabled.Applies(types.EvidenceTypeWebcam))

	ok, err := AlwaysPersist{}.ShouldPersist(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
