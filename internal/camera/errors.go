package camera

import "errors"

// 呼び出し側は errors.Is で判定する
var (
	// ErrPermissionOrDevice はカメラへのアクセスが拒否されたか、デバイスが存在しない
	ErrPermissionOrDevice = errors.New("camera access denied or unavailable")

	// ErrNotReady はスナップショットを取得できる状態にない
	ErrNotReady = errors.New("camera not ready")

	// ErrRenderContext は描画面を確保できなかった
	ErrRenderContext = errors.New("render context unavailable")
)

// ユーザーに表示するステータスメッセージ
const (
	MessageIdle             = "Camera is off"
	MessageCameraStarted    = "Camera started"
	MessageCameraStopped    = "Camera stopped"
	MessageSnapshotCaptured = "Snapshot captured"

	MessageCameraDenied  = "Camera access denied or unavailable. Please check permissions and try again."
	MessageNotReady      = "Camera is not ready. Start the camera and wait for the preview."
	MessageRenderFailure = "Could not prepare the image surface. Please try again."
)

func isRenderError(err error) bool {
	return errors.Is(err, ErrRenderContext)
}
