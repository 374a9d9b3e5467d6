package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"
)

// DefaultReadyTimeout は最初のフレームを待つ時間
const DefaultReadyTimeout = 10 * time.Second

// FramePreview はストリームの最新フレームを保持するプレビュー
//
// MJPEG配信用に SubscribeFrames でフレームを購読できる。
type FramePreview struct {
	readyTimeout time.Duration

	mu      sync.RWMutex
	stream  Stream
	stopCh  chan struct{}
	readyCh chan struct{}
	wg      sync.WaitGroup

	// 最新フレーム
	latest  []byte
	decoded image.Image

	subMu       sync.RWMutex
	subscribers map[chan []byte]struct{}
}

// NewFramePreview は新しい FramePreview を作成する
func NewFramePreview(readyTimeout time.Duration) *FramePreview {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	return &FramePreview{
		readyTimeout: readyTimeout,
		subscribers:  make(map[chan []byte]struct{}),
	}
}

// Attach はストリームを接続する。既存の接続は切り離す
func (p *FramePreview) Attach(stream Stream) {
	p.Detach()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stream = stream
	p.latest = nil
	p.decoded = nil
}

// Play はフレームの転送を開始し、最初のフレームが届くまで待つ
func (p *FramePreview) Play(ctx context.Context) error {
	p.mu.Lock()
	if p.stream == nil {
		p.mu.Unlock()
		return errors.New("プレビューにストリームが接続されていません")
	}
	if p.stopCh != nil {
		// 再生中
		p.mu.Unlock()
		return nil
	}
	p.stopCh = make(chan struct{})
	p.readyCh = make(chan struct{})
	endedCh := make(chan struct{})
	frames := p.stream.Frames()
	stopCh, readyCh := p.stopCh, p.readyCh
	p.wg.Add(1)
	go p.forwardFrames(frames, stopCh, readyCh, endedCh)
	p.mu.Unlock()

	timer := time.NewTimer(p.readyTimeout)
	defer timer.Stop()

	select {
	case <-readyCh:
		return nil
	case <-endedCh:
		return errors.New("最初のフレームが届く前にストリームが終了しました")
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("最初のフレームが %v 以内に届きませんでした", p.readyTimeout)
	}
}

// Detach はストリームを切り離す
func (p *FramePreview) Detach() {
	p.mu.Lock()
	stopCh := p.stopCh
	p.stopCh = nil
	p.readyCh = nil
	p.stream = nil
	p.latest = nil
	p.decoded = nil
	p.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	p.wg.Wait()
}

// CurrentFrame は表示中のフレームをデコードして返す
func (p *FramePreview) CurrentFrame() (image.Image, bool) {
	p.mu.RLock()
	if p.decoded != nil {
		img := p.decoded
		p.mu.RUnlock()
		return img, true
	}
	data := p.latest
	p.mu.RUnlock()

	if data == nil {
		return nil, false
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}

	p.mu.Lock()
	// デコード中に次のフレームが届いていなければキャッシュする
	if bytes.Equal(p.latest, data) {
		p.decoded = img
	}
	p.mu.Unlock()

	return img, true
}

// LatestFrame は最新フレームのJPEGデータのコピーを返す
func (p *FramePreview) LatestFrame() ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.latest == nil {
		return nil, false
	}
	frame := make([]byte, len(p.latest))
	copy(frame, p.latest)
	return frame, true
}

// SubscribeFrames はフレームの購読チャンネルと解除関数を返す
// 遅い購読者はフレームを取りこぼす
func (p *FramePreview) SubscribeFrames() (<-chan []byte, func()) {
	ch := make(chan []byte, 4)
	p.subMu.Lock()
	p.subscribers[ch] = struct{}{}
	p.subMu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subscribers, ch)
			p.subMu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

// forwardFrames はストリームのフレームを最新フレームと購読者へ転送する
//
// ストリームが終了したら表示中のフレームを破棄して endedCh を閉じる。
func (p *FramePreview) forwardFrames(frames <-chan []byte, stopCh, readyCh, endedCh chan struct{}) {
	defer p.wg.Done()

	ready := false
	for {
		select {
		case <-stopCh:
			return

		case frame, ok := <-frames:
			if !ok {
				p.mu.Lock()
				if p.stopCh == stopCh {
					p.latest = nil
					p.decoded = nil
				}
				p.mu.Unlock()
				close(endedCh)
				return
			}

			p.mu.Lock()
			if p.stopCh != stopCh {
				// 切り離し済み
				p.mu.Unlock()
				return
			}
			p.latest = frame
			p.decoded = nil
			p.mu.Unlock()

			if !ready {
				ready = true
				close(readyCh)
			}

			p.broadcast(frame)
		}
	}
}

// broadcast は購読者へフレームを送る
func (p *FramePreview) broadcast(frame []byte) {
	p.subMu.RLock()
	defer p.subMu.RUnlock()

	for ch := range p.subscribers {
		select {
		case ch <- frame:
		default:
			// バッファが一杯なら捨てる
		}
	}
}
