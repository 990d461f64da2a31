package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const captureTimeout = 3 * time.Second

// maxSnapshotBytes bounds a single frame.
const maxSnapshotBytes = 8 << 20

var ErrEmptySnapshot = errors.New("camera returned an empty frame")

// Camera produces one still image of the intake chute.
type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
}

// SnapshotCamera fetches a JPEG from an IP camera or a local webcam streamer
// that exposes a single-frame URL.
type SnapshotCamera struct {
	url        string
	httpClient *http.Client
}

func NewSnapshotCamera(url string) *SnapshotCamera {
	return &SnapshotCamera{url: url, httpClient: &http.Client{}}
}

func (c *SnapshotCamera) Capture(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("SnapshotCamera.Capture: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("SnapshotCamera.Capture: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SnapshotCamera.Capture: camera returned %d", resp.StatusCode)
	}

	frame, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("SnapshotCamera.Capture: %w", err)
	}
	if len(frame) == 0 {
		return nil, ErrEmptySnapshot
	}
	return frame, nil
}
