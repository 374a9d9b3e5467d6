//go:build gocv

package camera

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

func init() {
	RegisterBackend(BackendGoCV, newGoCVFromConfig)
}

// GoCVMediaDevices はOpenCVのVideoCaptureを使う MediaDevices 実装
type GoCVMediaDevices struct {
	device  interface{} // デバイス番号またはパス
	width   int
	height  int
	fps     int
	quality int
}

// newGoCVFromConfig は設定からGoCVMediaDevicesを作成する
func newGoCVFromConfig(config BackendConfig) (MediaDevices, error) {
	var device interface{} = 0
	if config.Device != "" {
		if id, err := strconv.Atoi(config.Device); err == nil {
			device = id
		} else {
			device = config.Device
		}
	}
	return &GoCVMediaDevices{
		device:  device,
		width:   config.Width,
		height:  config.Height,
		fps:     config.FPS,
		quality: 90,
	}, nil
}

// GetUserMedia はVideoCaptureを開いてストリームを返す
func (d *GoCVMediaDevices) GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error) {
	if !constraints.Video {
		return nil, errors.New("ビデオを含まない制約はサポートしていません")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	webcam, err := gocv.OpenVideoCapture(d.device)
	if err != nil {
		return nil, fmt.Errorf("VideoCaptureのオープンに失敗: %w", err)
	}
	if !webcam.IsOpened() {
		_ = webcam.Close()
		return nil, fmt.Errorf("デバイスを開けません: %v", d.device)
	}

	if d.width > 0 && d.height > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(d.width))
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(d.height))
	}
	if d.fps > 0 {
		webcam.Set(gocv.VideoCaptureFPS, float64(d.fps))
	}

	stopCh := make(chan struct{})
	frames := make(chan []byte, 2)
	track := newVideoTrack(fmt.Sprintf("OpenCV Camera (%v)", d.device), func() { close(stopCh) })

	go d.readFrames(webcam, frames, stopCh, track)

	return newFrameStream(frames, track), nil
}

// readFrames は停止されるまでフレームを読み取りJPEGにして送る
func (d *GoCVMediaDevices) readFrames(webcam *gocv.VideoCapture, frames chan<- []byte, stopCh <-chan struct{}, track *videoTrack) {
	defer close(frames)
	defer func() { _ = webcam.Close() }()

	mat := gocv.NewMat()
	defer func() { _ = mat.Close() }()

	params := []int{gocv.IMWriteJpegQuality, d.quality}

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if ok := webcam.Read(&mat); !ok {
			// デバイスが切断された
			log.Warn().Interface("device", d.device).Msg("VideoCaptureからの読み取りに失敗しました")
			track.markEnded()
			return
		}
		if mat.Empty() {
			continue
		}

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, params)
		if err != nil {
			log.Warn().Err(err).Msg("フレームのJPEGエンコードに失敗しました")
			continue
		}
		frame := make([]byte, buf.Len())
		copy(frame, buf.GetBytes())
		buf.Close()

		select {
		case frames <- frame:
		case <-stopCh:
			return
		}
	}
}
