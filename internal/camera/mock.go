package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrMockDenied はモックで許可を拒否したときのエラー
var ErrMockDenied = errors.New("モック: カメラへのアクセスが拒否されました")

// MockMediaDevices はテスト・開発用の MediaDevices 実装
//
// 単色のJPEGフレームを一定間隔で流す。
type MockMediaDevices struct {
	mu       sync.Mutex
	width    int
	height   int
	interval time.Duration
	denyErr  error
	streams  []*MockStream
}

// NewMockMediaDevices は width x height のフレームを流すモックを作成する
func NewMockMediaDevices(width, height int) *MockMediaDevices {
	return &MockMediaDevices{
		width:    width,
		height:   height,
		interval: 10 * time.Millisecond,
	}
}

// SetDenied はテスト用に GetUserMedia の失敗を設定する。nil で解除
func (m *MockMediaDevices) SetDenied(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denyErr = err
}

// SetFrameSize は以降に作成するストリームのフレームサイズを変更する
func (m *MockMediaDevices) SetFrameSize(width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.width = width
	m.height = height
}

// Streams は作成されたストリームを返す
func (m *MockMediaDevices) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	streams := make([]*MockStream, len(m.streams))
	copy(streams, m.streams)
	return streams
}

// GetUserMedia はモックストリームを返す
func (m *MockMediaDevices) GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.denyErr != nil {
		return nil, m.denyErr
	}
	if !constraints.Video {
		return nil, errors.New("モック: ビデオ以外はサポートしていません")
	}

	frame, err := solidJPEG(m.width, m.height)
	if err != nil {
		return nil, err
	}

	stream := newMockStream(frame, m.interval)
	m.streams = append(m.streams, stream)
	return stream, nil
}

// MockStream は MockMediaDevices が返すストリーム
type MockStream struct {
	id     string
	frames chan []byte
	track  *MockTrack
	stopCh chan struct{}
}

func newMockStream(frame []byte, interval time.Duration) *MockStream {
	s := &MockStream{
		id:     uuid.NewString(),
		frames: make(chan []byte, 1),
		stopCh: make(chan struct{}),
	}
	s.track = &MockTrack{id: uuid.NewString(), stopCh: s.stopCh, state: TrackLive}
	go s.run(frame, interval)
	return s
}

// run はトラックが停止するまでフレームを流す
func (s *MockStream) run(frame []byte, interval time.Duration) {
	defer close(s.frames)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case s.frames <- frame:
		}

		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func (s *MockStream) ID() string            { return s.id }
func (s *MockStream) Frames() <-chan []byte { return s.frames }
func (s *MockStream) Tracks() []Track       { return []Track{s.track} }

// Track はモックトラックを返す
func (s *MockStream) Track() *MockTrack {
	return s.track
}

// MockTrack は Stop の呼び出し回数を記録するトラック
type MockTrack struct {
	id     string
	stopCh chan struct{}

	mu        sync.Mutex
	state     TrackState
	stopCalls int
}

func (t *MockTrack) ID() string      { return t.id }
func (t *MockTrack) Kind() TrackKind { return TrackKindVideo }
func (t *MockTrack) Label() string   { return "Mock Camera" }

// ReadyState はトラックの状態を返す
func (t *MockTrack) ReadyState() TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stop はトラックを停止する
func (t *MockTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopCalls++
	if t.state == TrackEnded {
		return
	}
	t.state = TrackEnded
	close(t.stopCh)
}

// StopCalls は Stop が呼ばれた回数を返す
func (t *MockTrack) StopCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopCalls
}

// solidJPEG は単色のJPEG画像を生成する
func solidJPEG(width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill := color.RGBA{R: 32, G: 96, B: 160, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
