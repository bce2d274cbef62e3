package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDecode(t *testing.T) {
	t.Run("png", func(t *testing.T) {
		var buf bytes.Buffer
		if err := png.Encode(&buf, solidImage(8, 8, color.Gray{Y: 100})); err != nil {
			t.Fatalf("encode fixture: %v", err)
		}
		img, format, err := Decode(buf.Bytes())
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		if format != "png" {
			t.Errorf("format = %q, want png", format)
		}
		if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 8 {
			t.Errorf("bounds = %v, want 8x8", img.Bounds())
		}
	})

	t.Run("jpeg", func(t *testing.T) {
		data, err := EncodeJPEG(solidImage(8, 8, color.Gray{Y: 100}), 90)
		if err != nil {
			t.Fatalf("EncodeJPEG() error: %v", err)
		}
		_, format, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		if format != "jpeg" {
			t.Errorf("format = %q, want jpeg", format)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, _, err := Decode([]byte("not an image")); err == nil {
			t.Fatal("Decode() accepted garbage input")
		}
	})
}

func TestCrop(t *testing.T) {
	img := solidImage(100, 80, color.Gray{Y: 50})

	t.Run("inside bounds", func(t *testing.T) {
		out, err := Crop(img, image.Rect(10, 10, 40, 30))
		if err != nil {
			t.Fatalf("Crop() error: %v", err)
		}
		if out.Bounds().Dx() != 30 || out.Bounds().Dy() != 20 {
			t.Errorf("crop size = %v, want 30x20", out.Bounds())
		}
	})

	t.Run("overhanging box is clamped", func(t *testing.T) {
		out, err := Crop(img, image.Rect(80, 60, 150, 150))
		if err != nil {
			t.Fatalf("Crop() error: %v", err)
		}
		if out.Bounds().Dx() != 20 || out.Bounds().Dy() != 20 {
			t.Errorf("clamped crop size = %v, want 20x20", out.Bounds())
		}
	})

	t.Run("fully outside", func(t *testing.T) {
		if _, err := Crop(img, image.Rect(200, 200, 300, 300)); err == nil {
			t.Fatal("Crop() accepted a region outside the image")
		}
	})
}

func TestLuminance(t *testing.T) {
	plane := Luminance(solidImage(4, 3, color.Gray{Y: 128}))
	if len(plane) != 3 || len(plane[0]) != 4 {
		t.Fatalf("plane dimensions = %dx%d, want 3x4", len(plane), len(plane[0]))
	}
	for y := range plane {
		for x := range plane[y] {
			if math.Abs(plane[y][x]-128) > 0.5 {
				t.Fatalf("luminance at (%d,%d) = %v, want ~128", x, y, plane[y][x])
			}
		}
	}
}

func TestLuminanceShrinksLargeImages(t *testing.T) {
	plane := Luminance(solidImage(1200, 600, color.Gray{Y: 200}))
	if len(plane[0]) > maxMetricSide || len(plane) > maxMetricSide {
		t.Fatalf("plane %dx%d exceeds metric bound %d", len(plane[0]), len(plane), maxMetricSide)
	}
	if math.Abs(plane[0][0]-200) > 1 {
		t.Errorf("downscaled luminance = %v, want ~200", plane[0][0])
	}
}
