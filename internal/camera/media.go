package camera

import (
	"sync"

	"github.com/google/uuid"
)

// videoTrack はバックエンド共通のビデオトラック実装
type videoTrack struct {
	id    string
	label string

	mu    sync.Mutex
	state TrackState
	stop  func()
}

// newVideoTrack は停止処理 stop を持つトラックを作成する
func newVideoTrack(label string, stop func()) *videoTrack {
	return &videoTrack{
		id:    uuid.NewString(),
		label: label,
		state: TrackLive,
		stop:  stop,
	}
}

func (t *videoTrack) ID() string      { return t.id }
func (t *videoTrack) Kind() TrackKind { return TrackKindVideo }
func (t *videoTrack) Label() string   { return t.label }

// ReadyState はトラックの状態を返す
func (t *videoTrack) ReadyState() TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stop はトラックを停止する。停止済みなら何もしない
func (t *videoTrack) Stop() {
	t.mu.Lock()
	if t.state == TrackEnded {
		t.mu.Unlock()
		return
	}
	t.state = TrackEnded
	stop := t.stop
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// markEnded はデバイス側でストリームが終わったときに呼ぶ
func (t *videoTrack) markEnded() {
	t.mu.Lock()
	t.state = TrackEnded
	t.mu.Unlock()
}

// frameStream はフレームチャンネルとトラックを束ねる
type frameStream struct {
	id     string
	frames chan []byte
	tracks []Track
}

func newFrameStream(frames chan []byte, tracks ...Track) *frameStream {
	return &frameStream{
		id:     uuid.NewString(),
		frames: frames,
		tracks: tracks,
	}
}

func (s *frameStream) ID() string            { return s.id }
func (s *frameStream) Frames() <-chan []byte { return s.frames }
func (s *frameStream) Tracks() []Track {
	tracks := make([]Track, len(s.tracks))
	copy(tracks, s.tracks)
	return tracks
}
