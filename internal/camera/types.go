package camera

import (
	"context"
	"image"
	"time"
)

// Status はコントローラーの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // ストリームを保持していない (Idle)
	StatusActive   Status = "active"   // ストリームを保持している
)

// Constraints はメディア取得時の制約
type Constraints struct {
	Video bool
	Audio bool
}

// TrackKind はトラックの種類
type TrackKind string

const (
	TrackKindVideo TrackKind = "video"
	TrackKindAudio TrackKind = "audio"
)

// TrackState はトラックの状態
type TrackState string

const (
	TrackLive  TrackState = "live"
	TrackEnded TrackState = "ended"
)

// Track はストリーム内の個別チャンネル
//
// Stop は何度呼んでも安全でなければならない。
type Track interface {
	ID() string
	Kind() TrackKind
	Label() string
	ReadyState() TrackState
	Stop()
}

// Stream はデバイスから取得したライブ映像のハンドル
type Stream interface {
	ID() string
	Tracks() []Track

	// Frames はJPEGフレームを流すチャンネルを返す。全トラック停止後にクローズされる
	Frames() <-chan []byte
}

// MediaDevices はプラットフォームのメディアAPIを抽象化する
type MediaDevices interface {
	// GetUserMedia はユーザーの許可とデバイスの準備を待ってストリームを返す
	GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error)
}

// PreviewSink はストリームを表示するライブプレビュー
type PreviewSink interface {
	// Attach はストリームをプレビューに接続する
	Attach(stream Stream)

	// Play は再生を開始し、最初のフレームが届くまで待つ
	Play(ctx context.Context) error

	// Detach はストリームを切り離す。未接続なら何もしない
	Detach()

	// CurrentFrame は表示中のフレームを返す
	CurrentFrame() (image.Image, bool)
}

// Surface はオフスクリーンの2D描画面
type Surface interface {
	// DrawImage は src を (x, y) から幅 w 高さ h に描画する
	DrawImage(src image.Image, x, y, w, h int)

	// Encode は描画面を指定形式でエンコードする。quality は 0〜1
	Encode(mimeType string, quality float64) ([]byte, error)

	// ToDataURL は Encode の結果をdata URLとして返す
	ToDataURL(mimeType string, quality float64) (string, error)

	Width() int
	Height() int
}

// SurfaceFactory は描画面を確保する
type SurfaceFactory interface {
	NewSurface(width, height int) (Surface, error)
}

// Observer はステータス変化の通知先。active は通知時点でストリームを保持しているか
type Observer func(active bool, state StatusState)

// StatusState はUIに表示する状態
type StatusState struct {
	Message string  `json:"message"`
	Error   *string `json:"error"`
}

// CameraSession は開いているストリームを保持する
type CameraSession struct {
	ID        string
	StartedAt time.Time

	stream Stream
}

// Stream はセッションが保持するストリームを返す
func (s *CameraSession) Stream() Stream {
	return s.stream
}

// CapturedImage はスナップショットの結果
type CapturedImage struct {
	Data       []byte    // JPEGデータ
	MIMEType   string    // image/jpeg
	Width      int       // 元フレームの幅
	Height     int       // 元フレームの高さ
	Quality    float64   // エンコード品質
	CapturedAt time.Time // 取得時刻
}

// Size はデータサイズを返す
func (img *CapturedImage) Size() int {
	return len(img.Data)
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device string // デバイスパス
	Name   string // デバイス名
	Driver string // ドライバー名
}
