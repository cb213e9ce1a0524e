// Package vision wraps the ONNX face models behind the detector capability
// used by recognition cycles and enrollment.
package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/coachwatch/internal/config"
	"github.com/your-org/coachwatch/internal/identity"
	"github.com/your-org/coachwatch/internal/models"
	"github.com/your-org/coachwatch/internal/observability"
	"github.com/your-org/coachwatch/internal/surveillance"
)

// ErrNotReady is returned while the models are still loading or failed to load.
var ErrNotReady = fmt.Errorf("vision models not ready: %w", surveillance.ErrModelUnavailable)

const (
	detectorModel = "det_10g.onnx"
	embedderModel = "w600k_r50.onnx"
)

// Analyzer detects faces in frames and embeds each of them. Models load in
// the background; Ready reports when they are usable.
type Analyzer struct {
	cfg config.VisionConfig

	loaded  chan struct{}
	loadErr error

	// ORT sessions share their bound tensors, so inference is serialized.
	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

// NewAnalyzer starts loading the models from cfg.ModelsDir. The ONNX runtime
// environment must already be initialized.
func NewAnalyzer(cfg config.VisionConfig) *Analyzer {
	a := &Analyzer{cfg: cfg, loaded: make(chan struct{})}
	go a.load()
	return a
}

func (a *Analyzer) load() {
	defer close(a.loaded)

	detPath := filepath.Join(a.cfg.ModelsDir, detectorModel)
	embPath := filepath.Join(a.cfg.ModelsDir, embedderModel)

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(a.cfg.DetectionThreshold), nil)
	if err != nil {
		a.loadErr = fmt.Errorf("load detector: %w", err)
		slog.Error("vision models unavailable", "error", a.loadErr)
		return
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, a.cfg.EmbeddingDim, nil)
	if err != nil {
		det.Close()
		a.loadErr = fmt.Errorf("load embedder: %w", err)
		slog.Error("vision models unavailable", "error", a.loadErr)
		return
	}

	a.detector, a.embedder = det, emb
	slog.Info("vision models ready", "embedding_dim", emb.Dim())
}

// Ready waits for loading to finish and returns its outcome.
func (a *Analyzer) Ready(ctx context.Context) error {
	select {
	case <-a.loaded:
		if a.loadErr != nil {
			return fmt.Errorf("%w: %v", ErrNotReady, a.loadErr)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrNotReady, ctx.Err())
	}
}

func (a *Analyzer) usable() bool {
	select {
	case <-a.loaded:
		return a.loadErr == nil
	default:
		return false
	}
}

// Detect finds every face in the frame and embeds it, in detector order.
func (a *Analyzer) Detect(ctx context.Context, frame models.Frame) ([]models.DetectedFace, error) {
	if !a.usable() {
		return nil, ErrNotReady
	}
	img, err := decodeImage(frame.Data)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	dets, err := a.detect(img)
	if err != nil {
		return nil, err
	}

	faces := make([]models.DetectedFace, 0, len(dets))
	for _, d := range dets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := a.embed(img, d.BBox)
		if err != nil {
			slog.Warn("embed face", "camera_id", frame.CameraID, "seq", frame.Seq, "error", err)
			continue
		}
		faces = append(faces, models.DetectedFace{BBox: d.BBox, Confidence: d.Confidence, Embedding: emb})
	}
	return faces, nil
}

// EmbedImage embeds the highest-confidence face of a still image.
func (a *Analyzer) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if err := a.Ready(ctx); err != nil {
		return nil, err
	}
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	dets, err := a.detect(img)
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		return nil, identity.ErrNoFaceDetected
	}
	// nms leaves detections sorted by confidence.
	return a.embed(img, dets[0].BBox)
}

func (a *Analyzer) detect(img image.Image) ([]Detection, error) {
	start := time.Now()
	w, h := a.detector.InputSize()
	input := toCHW(img, w, h, detMean, detStd)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	b := img.Bounds()
	return a.detector.Detect(input, b.Dx(), b.Dy())
}

func (a *Analyzer) embed(img image.Image, bbox [4]float32) ([]float32, error) {
	crop := cropFace(img, bbox)
	if crop == nil {
		return nil, fmt.Errorf("face box %v outside image", bbox)
	}
	start := time.Now()
	w, h := a.embedder.InputSize()
	emb, err := a.embedder.Extract(toCHW(crop, w, h, embedMean, embedStd))
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	return emb, err
}

// Close releases the ONNX sessions once loading has finished.
func (a *Analyzer) Close() {
	<-a.loaded
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detector != nil {
		a.detector.Close()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
}

// InitRuntime points onnxruntime_go at the shared library and initializes it.
// libPath may be empty to use the platform default.
func InitRuntime(libPath string) error {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnxruntime: %w", err)
	}
	return nil
}

// DestroyRuntime tears down the ONNX runtime environment.
func DestroyRuntime() {
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Warn("destroy onnxruntime", "error", err)
	}
}

// Unavailable returns an Analyzer that never becomes ready, for when the
// runtime itself could not start.
func Unavailable(err error) *Analyzer {
	a := &Analyzer{loaded: make(chan struct{}), loadErr: err}
	close(a.loaded)
	return a
}
