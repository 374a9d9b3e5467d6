package camera

import (
	"context"
	"errors"
	"testing"
	"time"
)

// manualStream はテストからフレームを流せるストリーム
type manualStream struct {
	frames chan []byte
	track  *videoTrack
}

func newManualStream() *manualStream {
	s := &manualStream{frames: make(chan []byte, 4)}
	s.track = newVideoTrack("manual", nil)
	return s
}

func (s *manualStream) ID() string            { return "manual" }
func (s *manualStream) Frames() <-chan []byte { return s.frames }
func (s *manualStream) Tracks() []Track       { return []Track{s.track} }

func TestFramePreview_PlayWithoutStream(t *testing.T) {
	preview := NewFramePreview(time.Second)
	if err := preview.Play(context.Background()); err == nil {
		t.Error("Expected error when no stream is attached")
	}
}

func TestFramePreview_PlayWaitsForFirstFrame(t *testing.T) {
	preview := NewFramePreview(2 * time.Second)
	stream := newManualStream()
	preview.Attach(stream)
	defer preview.Detach()

	if _, ok := preview.CurrentFrame(); ok {
		t.Error("Expected no frame before play")
	}

	frame, err := solidJPEG(20, 10)
	if err != nil {
		t.Fatalf("solidJPEG failed: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		stream.frames <- frame
	}()

	if err := preview.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	img, ok := preview.CurrentFrame()
	if !ok {
		t.Fatal("Expected a frame after play")
	}
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 10 {
		t.Errorf("Expected 20x10, got %v", img.Bounds())
	}

	latest, ok := preview.LatestFrame()
	if !ok || len(latest) != len(frame) {
		t.Errorf("Expected latest frame of %d bytes, got %d", len(frame), len(latest))
	}
}

func TestFramePreview_PlayTimeout(t *testing.T) {
	preview := NewFramePreview(30 * time.Millisecond)
	preview.Attach(newManualStream())
	defer preview.Detach()

	if err := preview.Play(context.Background()); err == nil {
		t.Error("Expected timeout error")
	}
}

func TestFramePreview_PlayCanceled(t *testing.T) {
	preview := NewFramePreview(time.Second)
	preview.Attach(newManualStream())
	defer preview.Detach()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := preview.Play(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFramePreview_PlayFailsWhenStreamEnds(t *testing.T) {
	preview := NewFramePreview(5 * time.Second)
	stream := newManualStream()
	close(stream.frames)
	preview.Attach(stream)
	defer preview.Detach()

	start := time.Now()
	if err := preview.Play(context.Background()); err == nil {
		t.Fatal("Expected error when the stream ends before the first frame")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Play should fail without waiting for the ready timeout, took %v", elapsed)
	}
}

func TestFramePreview_StreamEndClearsFrame(t *testing.T) {
	preview := NewFramePreview(2 * time.Second)
	stream := newManualStream()
	preview.Attach(stream)
	defer preview.Detach()

	frame, err := solidJPEG(20, 10)
	if err != nil {
		t.Fatalf("solidJPEG failed: %v", err)
	}
	stream.frames <- frame

	if err := preview.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if _, ok := preview.CurrentFrame(); !ok {
		t.Fatal("Expected a frame after play")
	}

	close(stream.frames)

	deadline := time.Now().Add(time.Second)
	for {
		_, frameOK := preview.CurrentFrame()
		_, latestOK := preview.LatestFrame()
		if !frameOK && !latestOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected the last frame to be dropped after the stream ended")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFramePreview_DetachClearsFrame(t *testing.T) {
	preview := NewFramePreview(time.Second)
	stream := newManualStream()
	preview.Attach(stream)

	frame, _ := solidJPEG(8, 8)
	stream.frames <- frame
	if err := preview.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	preview.Detach()

	if _, ok := preview.CurrentFrame(); ok {
		t.Error("Expected no frame after detach")
	}
	if _, ok := preview.LatestFrame(); ok {
		t.Error("Expected no latest frame after detach")
	}

	// 2回目の Detach は何もしない
	preview.Detach()
}

func TestFramePreview_SubscribeFrames(t *testing.T) {
	preview := NewFramePreview(time.Second)
	stream := newManualStream()
	preview.Attach(stream)
	defer preview.Detach()

	frames, unsubscribe := preview.SubscribeFrames()

	frame, _ := solidJPEG(8, 8)
	stream.frames <- frame
	if err := preview.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	select {
	case got := <-frames:
		if len(got) != len(frame) {
			t.Errorf("Expected %d bytes, got %d", len(frame), len(got))
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for frame")
	}

	unsubscribe()
	unsubscribe()

	if _, ok := <-frames; ok {
		t.Error("Expected channel to be closed after unsubscribe")
	}
}
