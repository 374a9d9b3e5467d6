package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Controller はカメラストリームの取得・解放とスナップショットを管理する
//
// 1インスタンスにつき保持できるストリームは1本。取得したストリームは
// StopCamera か Close のどちらかで一度だけ解放される。
// 開始・停止・撮影・破棄は opMu で直列化し、状態の読み書きは mu で保護する。
type Controller struct {
	devices  MediaDevices
	preview  PreviewSink
	surfaces SurfaceFactory
	now      func() time.Time

	opMu sync.Mutex

	mu      sync.Mutex
	session *CameraSession
	status  StatusState

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObsID int
}

// NewController は新しい Controller を作成する
func NewController(devices MediaDevices, preview PreviewSink, surfaces SurfaceFactory) *Controller {
	if surfaces == nil {
		surfaces = NewRGBASurfaceFactory(0)
	}
	return &Controller{
		devices:   devices,
		preview:   preview,
		surfaces:  surfaces,
		now:       time.Now,
		status:    StatusState{Message: MessageIdle},
		observers: make(map[int]Observer),
	}
}

// Active はストリームを保持しているかを返す
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// State は現在の状態を返す
func (c *Controller) State() Status {
	if c.Active() {
		return StatusActive
	}
	return StatusInactive
}

// Status は現在のステータスを返す
func (c *Controller) Status() StatusState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Session は現在のセッションを返す
func (c *Controller) Session() (*CameraSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.session != nil
}

// Subscribe はステータス変化を購読する。戻り値で購読を解除する
//
// 通知は操作の順に届き、各通知にはその時点のアクティブ状態が添えられる。
func (c *Controller) Subscribe(observer Observer) func() {
	c.obsMu.Lock()
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = observer
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

// StartCamera はビデオストリームを要求してプレビューを開始する
//
// 既にアクティブな場合は既存のセッションを返す。ストリームの取得中も
// Active や Status はブロックしない。
func (c *Controller) StartCamera(ctx context.Context) (*CameraSession, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if session, ok := c.Session(); ok {
		return session, nil
	}

	session, err := c.acquire(ctx)

	c.mu.Lock()
	var state StatusState
	if err != nil {
		state = c.setStatusLocked("", MessageCameraDenied)
	} else {
		c.session = session
		state = c.setStatusLocked(MessageCameraStarted, "")
	}
	c.mu.Unlock()
	c.notify(err == nil, state)

	if err != nil {
		log.Warn().Err(err).Str("module", "camera").Msg("カメラの開始に失敗しました")
		return nil, err
	}

	log.Info().Str("module", "camera").Str("session", session.ID).Msg("カメラを開始しました")
	return session, nil
}

// acquire はストリームを取得してプレビューに接続する。opMu を保持して呼ぶ
func (c *Controller) acquire(ctx context.Context) (*CameraSession, error) {
	stream, err := c.devices.GetUserMedia(ctx, Constraints{Video: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermissionOrDevice, err)
	}

	if c.preview != nil {
		c.preview.Attach(stream)
		if err := c.preview.Play(ctx); err != nil {
			// 取得したストリームはここで解放する
			stopTracks(stream)
			c.preview.Detach()
			return nil, fmt.Errorf("%w: プレビューの再生に失敗: %w", ErrPermissionOrDevice, err)
		}
	}

	return &CameraSession{
		ID:        uuid.NewString(),
		StartedAt: c.now(),
		stream:    stream,
	}, nil
}

// StopCamera はストリームを停止して解放する。非アクティブなら何もしない
func (c *Controller) StopCamera() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	session := c.session
	if session == nil {
		c.mu.Unlock()
		return
	}
	c.session = nil
	state := c.setStatusLocked(MessageCameraStopped, "")
	c.mu.Unlock()

	c.release(session)
	c.notify(false, state)

	log.Info().Str("module", "camera").Str("session", session.ID).Msg("カメラを停止しました")
}

// Close はコントローラーを破棄する。保持中のストリームがあれば必ず停止する
//
// 開始処理の途中であれば、その完了を待ってから解放する。
func (c *Controller) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session != nil {
		log.Debug().Str("module", "camera").Str("session", session.ID).Msg("破棄時にストリームを解放します")
		c.release(session)
	}
	return nil
}

// release は全トラックを停止しプレビューを切り離す
func (c *Controller) release(session *CameraSession) {
	stopTracks(session.stream)
	if c.preview != nil {
		c.preview.Detach()
	}
}

// TakeSnapshot は現在のプレビューフレームをJPEGとして取得する
//
// セッションの状態は変更しない。
func (c *Controller) TakeSnapshot() (*CapturedImage, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	_, active := c.Session()
	img, err := c.snapshot(active)

	c.mu.Lock()
	var state StatusState
	switch {
	case err == nil:
		state = c.setStatusLocked(MessageSnapshotCaptured, "")
	case isRenderError(err):
		state = c.setStatusLocked("", MessageRenderFailure)
	default:
		state = c.setStatusLocked("", MessageNotReady)
	}
	c.mu.Unlock()
	c.notify(active, state)

	if err != nil {
		log.Warn().Err(err).Str("module", "camera").Msg("スナップショットの取得に失敗しました")
		return nil, err
	}

	log.Info().
		Str("module", "camera").
		Int("width", img.Width).
		Int("height", img.Height).
		Int("bytes", img.Size()).
		Msg("スナップショットを取得しました")
	return img, nil
}

// snapshot はフレームを描画面に写してエンコードする
func (c *Controller) snapshot(active bool) (*CapturedImage, error) {
	if !active {
		return nil, fmt.Errorf("%w: カメラが非アクティブです", ErrNotReady)
	}
	if c.preview == nil {
		return nil, fmt.Errorf("%w: プレビューがありません", ErrNotReady)
	}

	frame, ok := c.preview.CurrentFrame()
	if !ok || frame == nil {
		return nil, fmt.Errorf("%w: 表示中のフレームがありません", ErrNotReady)
	}

	width, height := frame.Bounds().Dx(), frame.Bounds().Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: フレームサイズが不正です (%dx%d)", ErrNotReady, width, height)
	}

	surface, err := c.surfaces.NewSurface(width, height)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderContext, err)
	}
	if surface == nil {
		return nil, fmt.Errorf("%w: 描画面がnilです", ErrRenderContext)
	}

	surface.DrawImage(frame, 0, 0, width, height)

	data, err := surface.Encode(MIMETypeJPEG, SnapshotQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderContext, err)
	}

	return &CapturedImage{
		Data:       data,
		MIMEType:   MIMETypeJPEG,
		Width:      width,
		Height:     height,
		Quality:    SnapshotQuality,
		CapturedAt: c.now(),
	}, nil
}

// setStatusLocked はステータスを更新して新しい値を返す（ロック済み前提）
func (c *Controller) setStatusLocked(message, errMessage string) StatusState {
	state := StatusState{Message: message}
	if errMessage != "" {
		e := errMessage
		state.Error = &e
	}
	c.status = state
	return state
}

// notify は購読者に通知する。opMu を保持し mu の外で呼ぶ
func (c *Controller) notify(active bool, state StatusState) {
	c.obsMu.RLock()
	observers := make([]Observer, 0, len(c.observers))
	for _, o := range c.observers {
		observers = append(observers, o)
	}
	c.obsMu.RUnlock()

	for _, o := range observers {
		o(active, state)
	}
}

// stopTracks はストリームの全トラックを停止する
func stopTracks(stream Stream) {
	if stream == nil {
		return
	}
	for _, track := range stream.Tracks() {
		track.Stop()
	}
}
