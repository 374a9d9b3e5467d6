package sink

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"snapcam/internal/camera"
)

// testImage はテスト用のスナップショットを作る
func testImage(t *testing.T) *camera.CapturedImage {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3)), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode failed: %v", err)
	}
	return &camera.CapturedImage{
		Data:     buf.Bytes(),
		MIMEType: camera.MIMETypeJPEG,
		Width:    4,
		Height:   3,
		Quality:  camera.SnapshotQuality,
	}
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.UTC)
}

func TestSnapshotFilename(t *testing.T) {
	testCases := []struct {
		name     string
		instant  time.Time
		expected string
	}{
		{
			name:     "UTC",
			instant:  fixedNow(),
			expected: "snapshot-2024-03-09T14-05-07-123Z.jpg",
		},
		{
			name:     "タイムゾーン付きはUTCに揃える",
			instant:  time.Date(2024, 3, 9, 23, 5, 7, 0, time.FixedZone("JST", 9*60*60)),
			expected: "snapshot-2024-03-09T14-05-07-000Z.jpg",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := SnapshotFilename(tc.instant)
			if got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
			if strings.Contains(got, ":") {
				t.Errorf("Filename must not contain ':': %q", got)
			}
			if again := SnapshotFilename(tc.instant); again != got {
				t.Errorf("Expected deterministic filename, got %q and %q", got, again)
			}
		})
	}
}

func TestNewSaveAction(t *testing.T) {
	img := testImage(t)
	action := NewSaveAction(img, fixedNow())

	if !strings.HasPrefix(action.Href, "data:image/jpeg;base64,") {
		t.Errorf("Expected JPEG data URL, got %q", action.Href[:30])
	}

	mimeType, data, err := decodeDataURL(action.Href)
	if err != nil {
		t.Fatalf("decodeDataURL failed: %v", err)
	}
	if mimeType != camera.MIMETypeJPEG {
		t.Errorf("Expected %s, got %s", camera.MIMETypeJPEG, mimeType)
	}
	if !bytes.Equal(data, img.Data) {
		t.Error("Expected decoded data to match image")
	}
}

func TestDecodeDataURL_Errors(t *testing.T) {
	testCases := []struct {
		name string
		href string
	}{
		{name: "スキームなし", href: "image/jpeg;base64,AAAA"},
		{name: "データ部なし", href: "data:image/jpeg;base64"},
		{name: "base64以外", href: "data:text/plain,hello"},
		{name: "不正なbase64", href: "data:image/jpeg;base64,@@@"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := decodeDataURL(tc.href); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

// failingSaver は常に失敗する Saver
type failingSaver struct {
	calls int
}

func (s *failingSaver) Save(context.Context, SaveAction) error {
	s.calls++
	return errors.New("保存先が利用できません")
}

func TestSink_DownloadImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	failing := &failingSaver{}
	s := New(nil, failing, NewDirSaver(fs, "/downloads"))
	s.now = fixedNow

	img := testImage(t)
	action := s.DownloadImage(context.Background(), img)

	if action.Filename != "snapshot-2024-03-09T14-05-07-123Z.jpg" {
		t.Errorf("Unexpected filename: %q", action.Filename)
	}
	if failing.calls != 1 {
		t.Errorf("Expected failing saver to be called once, got %d", failing.calls)
	}

	// 失敗した Saver があっても残りは保存される
	data, err := afero.ReadFile(fs, "/downloads/"+action.Filename)
	if err != nil {
		t.Fatalf("Expected file to be saved: %v", err)
	}
	if !bytes.Equal(data, img.Data) {
		t.Error("Saved data does not match image")
	}
}

func TestSink_DownloadImageExtraSaver(t *testing.T) {
	s := New(nil)
	extra := &failingSaver{}

	action := s.DownloadImage(context.Background(), testImage(t), extra)

	if action.Href == "" {
		t.Error("Expected action to be returned even when saving fails")
	}
	if extra.calls != 1 {
		t.Errorf("Expected extra saver to be called once, got %d", extra.calls)
	}
}
