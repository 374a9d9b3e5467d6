package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// V4L2Capturer はffmpeg経由でV4L2デバイスからMJPEGフレームを取得する
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
	quality    int // ffmpeg の -q:v (2〜31、小さいほど高品質)
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, width, height, fps int) *V4L2Capturer {
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
		quality:    3,
	}
}

// inputArgs はV4L2入力部分の引数を返す
func (c *V4L2Capturer) inputArgs() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2"}
	if c.width > 0 && c.height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.width, c.height))
	}
	if c.fps > 0 {
		args = append(args, "-framerate", strconv.Itoa(c.fps))
	}
	return append(args, "-i", c.devicePath)
}

// CaptureFrameAsJPEG は1フレームをキャプチャしてJPEGバイト配列として返す
func (c *V4L2Capturer) CaptureFrameAsJPEG(ctx context.Context) ([]byte, error) {
	args := append(c.inputArgs(),
		"-vframes", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"-",
	)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("JPEGフレームキャプチャに失敗: %w (stderr: %s)", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, errors.New("ffmpegの出力が空です")
	}

	return stdout.Bytes(), nil
}

// TestCapture はデバイスが実際に映像を返すか確認する
func (c *V4L2Capturer) TestCapture(ctx context.Context) error {
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.CaptureFrameAsJPEG(testCtx)
	return err
}

// StartStream は連続キャプチャを開始する
//
// フレームは frames に送られ、ffmpegの終了時に onExit を呼んでから frames をクローズする。
// ctx をキャンセルするとffmpegは停止する。
func (c *V4L2Capturer) StartStream(ctx context.Context, frames chan<- []byte, onExit func()) error {
	args := append(c.inputArgs(),
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(c.quality),
		"-",
	)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	go func() {
		defer close(frames)
		if onExit != nil {
			defer onExit()
		}
		defer func() {
			// コンテキストキャンセル時のエラーは無視
			if err := cmd.Wait(); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("device", c.devicePath).Str("stderr", stderr.String()).Msg("ffmpegが異常終了しました")
			}
		}()

		if err := readJPEGFrames(ctx, stdout, frames); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("device", c.devicePath).Msg("フレーム読み取りエラー")
		}
	}()

	return nil
}

// maxFrameSize は1フレームの上限
const maxFrameSize = 16 * 1024 * 1024

// readJPEGFrames は r からJPEGフレームを切り出して frames に送る
func readJPEGFrames(ctx context.Context, r io.Reader, frames chan<- []byte) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxFrameSize)
	scanner.Split(splitJPEG)

	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())

		select {
		case frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

var (
	jpegSOI = []byte{0xFF, 0xD8} // 開始マーカー
	jpegEOI = []byte{0xFF, 0xD9} // 終了マーカー
)

// splitJPEG は bufio.SplitFunc としてSOIからEOIまでを1トークンにする
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// マーカーの前半だけ残して捨てる
		if len(data) > 1 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end == -1 {
		if atEOF {
			// 不完全なフレームは捨てる
			return len(data), nil, nil
		}
		// 完全なフレームがまだない
		return start, nil, nil
	}

	end += start + len(jpegSOI) + len(jpegEOI)
	return end, data[start:end], nil
}

// V4L2MediaDevices はV4L2デバイスを使う MediaDevices 実装
type V4L2MediaDevices struct {
	device    string
	width     int
	height    int
	fps       int
	discovery Discovery
	probe     bool
}

// V4L2Options はV4L2バックエンドの設定
type V4L2Options struct {
	Device string // 空なら検出した最初のデバイス
	Width  int
	Height int
	FPS    int
	Probe  bool // 開始前にテストキャプチャを行う
}

// NewV4L2MediaDevices は新しいV4L2MediaDevicesを作成する
func NewV4L2MediaDevices(opts V4L2Options, discovery Discovery) *V4L2MediaDevices {
	if discovery == nil {
		discovery = NewLinuxDiscovery()
	}
	return &V4L2MediaDevices{
		device:    opts.Device,
		width:     opts.Width,
		height:    opts.Height,
		fps:       opts.FPS,
		discovery: discovery,
		probe:     opts.Probe,
	}
}

// GetUserMedia はデバイスを開いてストリームを返す
func (d *V4L2MediaDevices) GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error) {
	if !constraints.Video {
		return nil, errors.New("ビデオを含まない制約はサポートしていません")
	}

	device, err := d.resolveDevice(ctx)
	if err != nil {
		return nil, err
	}

	// 開けない場合は権限不足かデバイスが存在しない
	if !d.discovery.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("デバイスが利用できません: %s", device)
	}

	capturer := NewV4L2Capturer(device, d.width, d.height, d.fps)
	if d.probe {
		if err := capturer.TestCapture(ctx); err != nil {
			return nil, fmt.Errorf("カメラのテストキャプチャに失敗: %w", err)
		}
	}

	label := device
	if info, err := d.discovery.GetDeviceInfo(ctx, device); err == nil && info.Name != "" {
		label = info.Name
	}

	// ストリームの寿命はリクエストのコンテキストから切り離す
	streamCtx, cancel := context.WithCancel(context.Background())
	track := newVideoTrack(label, cancel)

	// ffmpegが終了したらトラックも終了扱いにする
	frames := make(chan []byte, 2)
	if err := capturer.StartStream(streamCtx, frames, track.markEnded); err != nil {
		cancel()
		return nil, err
	}

	log.Debug().Str("device", device).Str("label", label).Msg("V4L2ストリームを開始しました")
	return newFrameStream(frames, track), nil
}

// resolveDevice は使用するデバイスパスを決める
func (d *V4L2MediaDevices) resolveDevice(ctx context.Context) (string, error) {
	if d.device != "" {
		return d.device, nil
	}

	devices, err := d.discovery.ScanDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}
	if len(devices) == 0 {
		return "", errors.New("カメラが見つかりません")
	}
	return devices[0], nil
}
