package camera

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"strings"
	"testing"
)

func TestJPEGQuality(t *testing.T) {
	testCases := []struct {
		name     string
		quality  float64
		expected int
	}{
		{name: "スナップショット品質", quality: SnapshotQuality, expected: 90},
		{name: "最大", quality: 1, expected: 100},
		{name: "ゼロは最小値に丸める", quality: 0, expected: 1},
		{name: "範囲外はデフォルト", quality: 1.5, expected: 92},
		{name: "負数はデフォルト", quality: -0.1, expected: 92},
		{name: "NaNはデフォルト", quality: math.NaN(), expected: 92},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := jpegQuality(tc.quality); got != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestRGBASurfaceFactory_NewSurface(t *testing.T) {
	testCases := []struct {
		name          string
		maxPixels     int
		width, height int
		expectError   bool
	}{
		{name: "通常サイズ", maxPixels: 0, width: 640, height: 480},
		{name: "幅ゼロ", maxPixels: 0, width: 0, height: 480, expectError: true},
		{name: "高さ負数", maxPixels: 0, width: 640, height: -1, expectError: true},
		{name: "上限ちょうど", maxPixels: 100, width: 10, height: 10},
		{name: "上限超過", maxPixels: 100, width: 11, height: 10, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			factory := NewRGBASurfaceFactory(tc.maxPixels)
			surface, err := factory.NewSurface(tc.width, tc.height)

			if tc.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if surface.Width() != tc.width || surface.Height() != tc.height {
				t.Errorf("Expected %dx%d, got %dx%d", tc.width, tc.height, surface.Width(), surface.Height())
			}
		})
	}
}

func TestRGBASurface_DrawAndEncode(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 6))
	red := color.RGBA{R: 255, A: 255}
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			src.SetRGBA(x, y, red)
		}
	}

	surface, err := NewRGBASurfaceFactory(0).NewSurface(8, 6)
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}
	surface.DrawImage(src, 0, 0, 8, 6)

	rgba := surface.(*RGBASurface)
	if got := rgba.Image().At(3, 3); got != red {
		t.Errorf("Expected drawn pixel %v, got %v", red, got)
	}

	t.Run("JPEG", func(t *testing.T) {
		data, err := surface.Encode(MIMETypeJPEG, SnapshotQuality)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
			t.Errorf("Encoded data is not JPEG: %v", err)
		}
	})

	t.Run("PNG", func(t *testing.T) {
		data, err := surface.Encode(MIMETypePNG, 0)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if _, err := png.Decode(bytes.NewReader(data)); err != nil {
			t.Errorf("Encoded data is not PNG: %v", err)
		}
	})

	t.Run("未対応形式", func(t *testing.T) {
		if _, err := surface.Encode("image/webp", 0.9); err == nil {
			t.Error("Expected error for unsupported format")
		}
	})
}

func TestRGBASurface_DrawImageScales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	blue := color.RGBA{B: 255, A: 255}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.SetRGBA(x, y, blue)
		}
	}

	surface, err := NewRGBASurfaceFactory(0).NewSurface(16, 16)
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}
	surface.DrawImage(src, 0, 0, 16, 16)

	r, g, b, _ := surface.(*RGBASurface).Image().At(8, 8).RGBA()
	if r != 0 || g != 0 || b>>8 != 255 {
		t.Errorf("Expected scaled pixel to be blue, got r=%d g=%d b=%d", r, g, b)
	}
}

func TestDataURL(t *testing.T) {
	data := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	url := DataURL(MIMETypeJPEG, data)

	prefix := "data:image/jpeg;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("Expected prefix %q, got %q", prefix, url)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("Failed to decode base64: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("Expected %v, got %v", data, decoded)
	}
}
