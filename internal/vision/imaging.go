package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

var (
	detMean, detStd     = [3]float32{127.5, 127.5, 127.5}, [3]float32{128, 128, 128}
	embedMean, embedStd = [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5}
)

// cropPadding widens face boxes on each side before embedding.
const cropPadding = 0.1

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// toCHW resizes img to w x h and lays it out as normalized planar RGB:
//
//	pixel = (pixel - mean) / std
func toCHW(img image.Image, w, h int, mean, std [3]float32) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := w * h
	out := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		p := dst.Pix[i*4 : i*4+3]
		for c := 0; c < 3; c++ {
			out[c*plane+i] = (float32(p[c]) - mean[c]) / std[c]
		}
	}
	return out
}

// cropFace cuts the padded face box out of img. It returns nil when the box
// does not overlap the image.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	padW := (bbox[2] - bbox[0]) * cropPadding
	padH := (bbox[3] - bbox[1]) * cropPadding
	if padW < 0 || padH < 0 {
		return nil
	}

	r := image.Rect(
		int(bbox[0]-padW), int(bbox[1]-padH),
		int(bbox[2]+padW), int(bbox[3]+padH),
	).Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}
