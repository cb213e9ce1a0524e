package models

import "time"

// Frame is one captured image. Data holds the encoded JPEG as produced by the
// capture device; the engine never inspects it.
type Frame struct {
	CameraID   string    `json:"camera_id"`
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	Data       []byte    `json:"-"`
}

// DetectedFace is one face found in a frame together with its embedding.
type DetectedFace struct {
	BBox       [4]float32 `json:"bbox"` // x1, y1, x2, y2 (pixel coordinates)
	Confidence float32    `json:"confidence"`
	Embedding  []float32  `json:"-"`
}
