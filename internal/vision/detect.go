package vision

import (
	"fmt"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection represents a detected face.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2 (pixel coordinates)
	Confidence float32
	Landmarks  [5][2]float32 // eyes, nose, mouth corners
}

// RetinaFace det_10g at 640x640 emits, per stride, scores [N,1], box
// distances [N,4] and landmark offsets [N,10] where N = (640/stride)^2 * 2.
const (
	detInputSize     = 640
	anchorsPerCell   = 2
	nmsIoUThreshold  = 0.4
	detInputName     = "input.1"
	landmarkChannels = 10
)

type strideHead struct {
	stride                   int
	scores, boxes, landmarks string
}

var detHeads = []strideHead{
	{stride: 8, scores: "448", boxes: "451", landmarks: "454"},
	{stride: 16, scores: "471", boxes: "474", landmarks: "477"},
	{stride: 32, scores: "494", boxes: "497", landmarks: "500"},
}

// headOutputs holds the three tensors of one stride.
type headOutputs struct {
	stride    int
	scores    *ort.Tensor[float32]
	boxes     *ort.Tensor[float32]
	landmarks *ort.Tensor[float32]
}

// Detector runs RetinaFace face detection using ONNX Runtime. It is not safe
// for concurrent use.
type Detector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	heads     []headOutputs
	threshold float32
	inputW    int
	inputH    int
}

// NewDetector loads the RetinaFace ONNX model.
// opts may be nil (ORT defaults) or a pre-configured *ort.SessionOptions.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	d := &Detector{threshold: threshold, inputW: detInputSize, inputH: detInputSize}

	var err error
	d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(d.inputH), int64(d.inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	var (
		names  []string
		values []ort.Value
	)
	for _, h := range detHeads {
		n := int64((d.inputW / h.stride) * (d.inputH / h.stride) * anchorsPerCell)
		ho := headOutputs{stride: h.stride}
		if ho.scores, err = ort.NewEmptyTensor[float32](ort.NewShape(n, 1)); err == nil {
			if ho.boxes, err = ort.NewEmptyTensor[float32](ort.NewShape(n, 4)); err == nil {
				ho.landmarks, err = ort.NewEmptyTensor[float32](ort.NewShape(n, landmarkChannels))
			}
		}
		d.heads = append(d.heads, ho)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create output tensors for stride %d: %w", h.stride, err)
		}
		names = append(names, h.scores, h.boxes, h.landmarks)
		values = append(values, ho.scores, ho.boxes, ho.landmarks)
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{detInputName},
		names,
		[]ort.Value{d.input},
		values,
		opts,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// Detect runs face detection on a preprocessed image.
// imgData is CHW [3, inputH, inputW], normalized; origW/origH scale the boxes
// back to the source frame.
func (d *Detector) Detect(imgData []float32, origW, origH int) ([]Detection, error) {
	copy(d.input.GetData(), imgData)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	sx := float32(origW) / float32(d.inputW)
	sy := float32(origH) / float32(d.inputH)

	var dets []Detection
	for _, h := range d.heads {
		dets = decodeHead(dets, h.stride, d.inputW/h.stride, h.scores.GetData(), h.boxes.GetData(), h.landmarks.GetData(),
			d.threshold, sx, sy, float32(origW), float32(origH))
	}
	return nms(dets, nmsIoUThreshold), nil
}

// decodeHead turns one stride's anchor grid into detections. Box outputs are
// edge distances from the anchor centre in stride units.
func decodeHead(dst []Detection, stride, gridW int, scores, boxes, landmarks []float32, threshold, sx, sy, maxX, maxY float32) []Detection {
	st := float32(stride)
	for idx, score := range scores {
		if score < threshold {
			continue
		}
		cell := idx / anchorsPerCell
		ax := float32(cell%gridW) * st
		ay := float32(cell/gridW) * st

		b := boxes[idx*4 : idx*4+4]
		det := Detection{
			BBox: [4]float32{
				clampF((ax-b[0]*st)*sx, 0, maxX),
				clampF((ay-b[1]*st)*sy, 0, maxY),
				clampF((ax+b[2]*st)*sx, 0, maxX),
				clampF((ay+b[3]*st)*sy, 0, maxY),
			},
			Confidence: score,
		}
		lm := landmarks[idx*landmarkChannels : idx*landmarkChannels+landmarkChannels]
		for i := range det.Landmarks {
			det.Landmarks[i] = [2]float32{(ax + lm[i*2]*st) * sx, (ay + lm[i*2+1]*st) * sy}
		}
		dst = append(dst, det)
	}
	return dst
}

// InputSize returns the model's expected input dimensions.
func (d *Detector) InputSize() (int, int) {
	return d.inputW, d.inputH
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, h := range d.heads {
		for _, t := range []*ort.Tensor[float32]{h.scores, h.boxes, h.landmarks} {
			if t != nil {
				t.Destroy()
			}
		}
	}
}

// nms performs greedy Non-Maximum Suppression, highest confidence first.
func nms(dets []Detection, iouThreshold float32) []Detection {
	if len(dets) == 0 {
		return dets
	}
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	kept := dets[:0:0]
	for _, d := range dets {
		suppressed := false
		for _, k := range kept {
			if iou(k.BBox, d.BBox) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	x1, y1 := max(a[0], b[0]), max(a[1], b[1])
	x2, y2 := min(a[2], b[2]), min(a[3], b[3])

	inter := max(0, x2-x1) * max(0, y2-y1)
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
