package camera

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

const (
	// MIMETypeJPEG はスナップショットの形式
	MIMETypeJPEG = "image/jpeg"
	// MIMETypePNG は可逆形式
	MIMETypePNG = "image/png"

	// SnapshotQuality はスナップショットのJPEG品質（固定）
	SnapshotQuality = 0.9

	// defaultEncodeQuality は範囲外の品質が指定されたときに使う値
	defaultEncodeQuality = 0.92

	// DefaultMaxSurfacePixels は確保できる描画面の上限（16384x16384相当の制限より控えめ）
	DefaultMaxSurfacePixels = 8192 * 8192
)

// RGBASurface はメモリ上のRGBA描画面
type RGBASurface struct {
	img *image.RGBA
}

// Width は描画面の幅を返す
func (s *RGBASurface) Width() int {
	return s.img.Bounds().Dx()
}

// Height は描画面の高さを返す
func (s *RGBASurface) Height() int {
	return s.img.Bounds().Dy()
}

// Image は描画面の画像を返す
func (s *RGBASurface) Image() image.Image {
	return s.img
}

// DrawImage は src 全体を (x, y, w, h) の矩形に描画する
func (s *RGBASurface) DrawImage(src image.Image, x, y, w, h int) {
	dst := image.Rect(x, y, x+w, y+h)
	if src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		// 等倍ならピクセルをそのままコピー
		draw.Draw(s.img, dst, src, src.Bounds().Min, draw.Src)
		return
	}
	draw.ApproxBiLinear.Scale(s.img, dst, src, src.Bounds(), draw.Src, nil)
}

// Encode は描画面をエンコードする
func (s *RGBASurface) Encode(mimeType string, quality float64) ([]byte, error) {
	var buf bytes.Buffer

	switch mimeType {
	case MIMETypeJPEG:
		opts := &jpeg.Options{Quality: jpegQuality(quality)}
		if err := jpeg.Encode(&buf, s.img, opts); err != nil {
			return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
		}
	case MIMETypePNG:
		if err := png.Encode(&buf, s.img); err != nil {
			return nil, fmt.Errorf("PNGエンコードに失敗: %w", err)
		}
	default:
		return nil, fmt.Errorf("サポートされていない形式: %s", mimeType)
	}

	return buf.Bytes(), nil
}

// ToDataURL はエンコード結果をdata URLにする
func (s *RGBASurface) ToDataURL(mimeType string, quality float64) (string, error) {
	data, err := s.Encode(mimeType, quality)
	if err != nil {
		return "", err
	}
	return DataURL(mimeType, data), nil
}

// DataURL はバイト列をbase64のdata URLにする
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// jpegQuality は 0〜1 の品質を image/jpeg の 1〜100 に変換する
func jpegQuality(quality float64) int {
	if math.IsNaN(quality) || quality < 0 || quality > 1 {
		quality = defaultEncodeQuality
	}
	q := int(math.Round(quality * 100))
	if q < 1 {
		q = 1
	}
	return q
}

// RGBASurfaceFactory は RGBASurface を確保する
type RGBASurfaceFactory struct {
	MaxPixels int
}

// NewRGBASurfaceFactory は上限付きのファクトリーを作成する
func NewRGBASurfaceFactory(maxPixels int) *RGBASurfaceFactory {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxSurfacePixels
	}
	return &RGBASurfaceFactory{MaxPixels: maxPixels}
}

// NewSurface は width x height の描画面を確保する
func (f *RGBASurfaceFactory) NewSurface(width, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("無効なサイズ: %dx%d", width, height)
	}
	if f.MaxPixels > 0 && width*height > f.MaxPixels {
		return nil, fmt.Errorf("描画面が大きすぎます: %dx%d (上限 %d ピクセル)", width, height, f.MaxPixels)
	}
	return &RGBASurface{img: image.NewRGBA(image.Rect(0, 0, width, height))}, nil
}
