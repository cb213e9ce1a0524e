package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/coachwatch/internal/models"
	"github.com/your-org/coachwatch/internal/surveillance"
)

func TestIoU(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}
	assert.InDelta(t, 1.0, iou(a, a), 1e-6)
	assert.InDelta(t, 0.0, iou(a, [4]float32{20, 20, 30, 30}), 1e-6)
	// 5x10 overlap over 150 union.
	assert.InDelta(t, 50.0/150.0, iou(a, [4]float32{5, 0, 15, 10}), 1e-6)
	assert.Zero(t, iou([4]float32{0, 0, 0, 0}, [4]float32{0, 0, 0, 0}))
}

func TestNMSKeepsHighestConfidence(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.7},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.9},
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.8},
	}
	out := nms(dets, 0.4)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.9, out[0].Confidence, 1e-6)
	assert.InDelta(t, 0.8, out[1].Confidence, 1e-6)
	assert.Empty(t, nms(nil, 0.4))
}

func TestDecodeHead(t *testing.T) {
	// 2x2 grid at stride 8, two anchors per cell; only index 3 passes.
	scores := []float32{0.1, 0.2, 0.3, 0.95, 0, 0, 0, 0}
	boxes := make([]float32, 8*4)
	copy(boxes[3*4:], []float32{1, 1, 1, 1})
	lms := make([]float32, 8*landmarkChannels)

	dets := decodeHead(nil, 8, 2, scores, boxes, lms, 0.5, 1, 1, 100, 100)
	require.Len(t, dets, 1)
	// Index 3 is cell 1 -> (x=8, y=0); edges one stride away, clamped at 0.
	assert.Equal(t, [4]float32{0, 0, 16, 8}, dets[0].BBox)
	assert.InDelta(t, 0.95, dets[0].Confidence, 1e-6)
	assert.Equal(t, [2]float32{8, 0}, dets[0].Landmarks[0])
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestToCHW(t *testing.T) {
	img := solid(4, 4, color.RGBA{R: 255, G: 127, B: 0, A: 255})
	out := toCHW(img, 2, 2, [3]float32{0, 0, 0}, [3]float32{1, 1, 1})
	require.Len(t, out, 12)
	for i := 0; i < 4; i++ {
		// Interpolation over a flat image may round by one level.
		assert.InDelta(t, 255, out[i], 1)
		assert.InDelta(t, 127, out[4+i], 1)
		assert.InDelta(t, 0, out[8+i], 1)
	}

	norm := toCHW(img, 1, 1, detMean, detStd)
	assert.InDelta(t, (255-127.5)/128, norm[0], 0.01)
}

func TestCropFace(t *testing.T) {
	img := solid(100, 100, color.RGBA{A: 255})

	crop := cropFace(img, [4]float32{10, 20, 30, 60})
	require.NotNil(t, crop)
	// 10% padding on each side: 20x40 box grows by 2x4 per side.
	assert.Equal(t, 24, crop.Bounds().Dx())
	assert.Equal(t, 48, crop.Bounds().Dy())

	edge := cropFace(img, [4]float32{90, 90, 120, 120})
	require.NotNil(t, edge)
	assert.Equal(t, 13, edge.Bounds().Dx())

	assert.Nil(t, cropFace(img, [4]float32{200, 200, 220, 220}))
	assert.Nil(t, cropFace(img, [4]float32{30, 30, 10, 10}))
}

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(3, 2, color.RGBA{A: 255})))
	img, err := decodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())

	_, err = decodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestUnavailableAnalyzer(t *testing.T) {
	a := Unavailable(errors.New("libonnxruntime.so not found"))
	ctx := context.Background()

	assert.ErrorIs(t, a.Ready(ctx), ErrNotReady)
	assert.ErrorIs(t, a.Ready(ctx), surveillance.ErrModelUnavailable)
	_, err := a.Detect(ctx, models.Frame{Data: []byte{1}})
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = a.EmbedImage(ctx, []byte{1})
	assert.ErrorIs(t, err, ErrNotReady)
	a.Close()
}

func TestIoUSymmetric(t *testing.T) {
	a := [4]float32{0, 0, 4, 4}
	b := [4]float32{2, 2, 6, 6}
	assert.InDelta(t, float64(iou(a, b)), float64(iou(b, a)), 1e-9)
	assert.False(t, math.IsNaN(float64(iou(a, b))))
}
