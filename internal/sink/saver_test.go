package sink

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
)

func TestDirSaver_AvoidsOverwrite(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	saver := NewDirSaver(fs, "/downloads")

	action := NewSaveAction(testImage(t), fixedNow())

	for i := 0; i < 3; i++ {
		if err := saver.Save(ctx, action); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	expected := []string{
		"/downloads/snapshot-2024-03-09T14-05-07-123Z.jpg",
		"/downloads/snapshot-2024-03-09T14-05-07-123Z (1).jpg",
		"/downloads/snapshot-2024-03-09T14-05-07-123Z (2).jpg",
	}
	for _, path := range expected {
		exists, err := afero.Exists(fs, path)
		if err != nil || !exists {
			t.Errorf("Expected %s to exist", path)
		}
	}
}

func TestDirSaver_InvalidHref(t *testing.T) {
	saver := NewDirSaver(afero.NewMemMapFs(), "/downloads")
	err := saver.Save(context.Background(), SaveAction{Href: "not-a-data-url", Filename: "x.jpg"})
	if err == nil {
		t.Error("Expected error for invalid href")
	}
}

func TestResponseSaver(t *testing.T) {
	img := testImage(t)
	action := NewSaveAction(img, fixedNow())
	recorder := httptest.NewRecorder()

	if err := NewResponseSaver(recorder).Save(context.Background(), action); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if recorder.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", ct)
	}
	expectedDisposition := `attachment; filename=snapshot-2024-03-09T14-05-07-123Z.jpg`
	if cd := recorder.Header().Get("Content-Disposition"); cd != expectedDisposition {
		t.Errorf("Expected %q, got %q", expectedDisposition, cd)
	}
	if !bytes.Equal(recorder.Body.Bytes(), img.Data) {
		t.Error("Response body does not match image")
	}
}
