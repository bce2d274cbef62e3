// Package imaging holds the small amount of pixel-level work the service
// does itself: decoding uploads, cropping detected face regions, and
// producing the grayscale planes the quality metrics run on.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxMetricSide bounds the cost of quality metrics on large crops. Crops
// larger than this are downscaled before measurement; blur variance from the
// face service's detections is computed on the same scale for every frame,
// which is what the thresholds are calibrated against.
const maxMetricSide = 512

// Decode parses an uploaded image (JPEG, PNG or WebP).
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// Crop cuts the given rectangle out of img, clamped to the image bounds.
// Detectors occasionally return boxes that overhang the frame edge.
func Crop(img image.Image, rect image.Rectangle) (image.Image, error) {
	clamped := rect.Intersect(img.Bounds())
	if clamped.Empty() {
		return nil, fmt.Errorf("crop region %v lies outside image bounds %v", rect, img.Bounds())
	}

	out := image.NewRGBA(image.Rect(0, 0, clamped.Dx(), clamped.Dy()))
	xdraw.Copy(out, image.Point{}, img, clamped, xdraw.Src, nil)
	return out, nil
}

// EncodeJPEG serializes img as JPEG for transport to the face service.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Luminance converts img to a grayscale plane (BT.601 weights), downscaling
// first if either side exceeds maxMetricSide. Values are float64 in [0, 255].
func Luminance(img image.Image) [][]float64 {
	img = shrinkForMetrics(img)
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	plane := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// RGBA returns 16-bit channels.
			row[x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257.0
		}
		plane[y] = row
	}
	return plane
}

func shrinkForMetrics(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxMetricSide && h <= maxMetricSide {
		return img
	}

	scale := float64(maxMetricSide) / float64(w)
	if h > w {
		scale = float64(maxMetricSide) / float64(h)
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	out := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), img, b, xdraw.Src, nil)
	return out
}
