package moderation

import (
	"context"
	"errors"

	"exproctor/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rtypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const minEyesOpenConfidence = 90

var phoneLabels = map[string]bool{
	"Mobile Phone": true,
	"Phone":        true,
	"Cell Phone":   true,
}

// Detector is the subset of *rekognition.Client used here.
type Detector interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// FaceAndObject keeps only suspicious frames: a phone in view, anything other
// than exactly one face, or a face with closed eyes or an open mouth.
type FaceAndObject struct {
	detector Detector
	logger   *logrus.Logger
}

func NewFaceAndObject(detector Detector, logger *logrus.Logger) *FaceAndObject {
	return &FaceAndObject{detector: detector, logger: logger}
}

func (f *FaceAndObject) ShouldPersist(ctx context.Context, image []byte) (bool, error) {
	var phone, faceAnomaly bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		phone, err = f.phoneInView(gctx, image)
		return err
	})
	g.Go(func() error {
		var err error
		faceAnomaly, err = f.faceAnomaly(gctx, image)
		return err
	})

	if err := g.Wait(); err != nil {
		f.logger.WithError(err).Warn("moderation check failed")
		return false, mapErr(ctx, err)
	}

	if phone || faceAnomaly {
		f.logger.WithFields(logrus.Fields{
			"phone":        phone,
			"face_anomaly": faceAnomaly,
		}).Debug("suspicious frame")
	}

	return phone || faceAnomaly, nil
}

func (f *FaceAndObject) phoneInView(ctx context.Context, image []byte) (bool, error) {
	out, err := f.detector.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:    &rtypes.Image{Bytes: image},
		Features: []rtypes.DetectLabelsFeatureName{rtypes.DetectLabelsFeatureNameGeneralLabels},
	})
	if err != nil {
		return false, err
	}

	for _, label := range out.Labels {
		if phoneLabels[aws.ToString(label.Name)] {
			return true, nil
		}
	}

	return false, nil
}

func (f *FaceAndObject) faceAnomaly(ctx context.Context, image []byte) (bool, error) {
	out, err := f.detector.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &rtypes.Image{Bytes: image},
		Attributes: []rtypes.Attribute{rtypes.AttributeAll},
	})
	if err != nil {
		return false, err
	}

	if len(out.FaceDetails) != 1 {
		return true, nil
	}

	face := out.FaceDetails[0]
	if face.EyesOpen == nil || aws.ToFloat32(face.EyesOpen.Confidence) < minEyesOpenConfidence || !face.EyesOpen.Value {
		return true, nil
	}
	if face.MouthOpen != nil && face.MouthOpen.Value {
		return true, nil
	}

	return false, nil
}

func mapErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, "moderation: deadline exceeded")
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return types.NewError(types.ErrModeration, "%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}

	return types.NewError(types.ErrModeration, "%s", err.Error())
}
