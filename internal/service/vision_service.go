package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"vendotrash/internal/domain"
)

// ErrVisionUnavailable means no label set could be obtained. It is never
// turned into a REJECTED verdict.
var ErrVisionUnavailable = errors.New("vision service unavailable")

// LabelDetector turns image bytes into labels with confidences in [0,1].
type LabelDetector interface {
	DetectLabels(ctx context.Context, image []byte) (domain.LabelSet, error)
}

type rekognitionAPI interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

type VisionService struct {
	rekognitionClient rekognitionAPI
	maxLabels         int32
	minConfidence     float32
	timeout           time.Duration
}

func NewVisionService(rekClient *rekognition.Client, maxLabels int32, minConfidence float32, timeout time.Duration) *VisionService {
	if rekClient == nil {
		return newVisionService(nil, maxLabels, minConfidence, timeout)
	}
	return newVisionService(rekClient, maxLabels, minConfidence, timeout)
}

func newVisionService(api rekognitionAPI, maxLabels int32, minConfidence float32, timeout time.Duration) *VisionService {
	return &VisionService{
		rekognitionClient: api,
		maxLabels:         maxLabels,
		minConfidence:     minConfidence,
		timeout:           timeout,
	}
}

func (s *VisionService) DetectLabels(ctx context.Context, image []byte) (domain.LabelSet, error) {
	if s.rekognitionClient == nil {
		return nil, fmt.Errorf("%w: Rekognition client not configured", ErrVisionUnavailable)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrVisionUnavailable)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	input := &rekognition.DetectLabelsInput{
		Image:         &types.Image{Bytes: image},
		MaxLabels:     aws.Int32(s.maxLabels),
		MinConfidence: aws.Float32(s.minConfidence),
	}

	log.Printf("VisionService: calling Rekognition DetectLabels (%d bytes)", len(image))
	result, err := s.rekognitionClient.DetectLabels(ctx, input)
	if err != nil {
		log.Printf("VisionService: DetectLabels failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrVisionUnavailable, err)
	}

	labels := make(domain.LabelSet, 0, len(result.Labels))
	for _, l := range result.Labels {
		if l.Name == nil || l.Confidence == nil {
			continue
		}
		// Rekognition scores are percentages
		labels = append(labels, domain.DetectedLabel{
			Name:       aws.ToString(l.Name),
			Confidence: float64(aws.ToFloat32(l.Confidence)) / 100,
		})
	}
	log.Printf("VisionService: Rekognition returned %d labels", len(labels))
	return labels, nil
}
