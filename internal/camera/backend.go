package camera

import (
	"fmt"
	"sort"
	"sync"
)

// BackendType はメディアデバイスの実装種別
type BackendType string

const (
	// BackendV4L2 はffmpeg経由のV4L2キャプチャ
	BackendV4L2 BackendType = "v4l2"
	// BackendGoCV はOpenCVのVideoCapture（ビルドタグ gocv が必要）
	BackendGoCV BackendType = "gocv"
	// BackendMock は単色フレームを流すモック
	BackendMock BackendType = "mock"
)

// BackendConfig はバックエンド作成設定
type BackendConfig struct {
	Device string // デバイスパスまたはデバイス番号
	Width  int
	Height int
	FPS    int
	Probe  bool
}

// BackendCreator はバックエンド作成関数の型
type BackendCreator func(config BackendConfig) (MediaDevices, error)

var (
	backendsMu sync.RWMutex
	backends   = map[BackendType]BackendCreator{
		BackendV4L2: newV4L2FromConfig,
		BackendMock: newMockFromConfig,
	}
)

// RegisterBackend はバックエンド作成関数を登録する
func RegisterBackend(backendType BackendType, creator BackendCreator) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[backendType] = creator
}

// SupportedBackends は登録されているバックエンドを返す
func SupportedBackends() []BackendType {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	types := make([]BackendType, 0, len(backends))
	for t := range backends {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// NewMediaDevices は種別に応じた MediaDevices を作成する
func NewMediaDevices(backendType BackendType, config BackendConfig) (MediaDevices, error) {
	backendsMu.RLock()
	creator, exists := backends[backendType]
	backendsMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("サポートされていないバックエンド: %s", backendType)
	}
	return creator(config)
}

// newV4L2FromConfig は設定からV4L2MediaDevicesを作成する
func newV4L2FromConfig(config BackendConfig) (MediaDevices, error) {
	return NewV4L2MediaDevices(V4L2Options{
		Device: config.Device,
		Width:  config.Width,
		Height: config.Height,
		FPS:    config.FPS,
		Probe:  config.Probe,
	}, nil), nil
}

// newMockFromConfig は設定からMockMediaDevicesを作成する
func newMockFromConfig(config BackendConfig) (MediaDevices, error) {
	width, height := config.Width, config.Height
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return NewMockMediaDevices(width, height), nil
}
