package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"snapcam/internal/camera"
)

// Sink はスナップショットのダウンロードとアップロードを扱う
type Sink struct {
	uploader Uploader
	savers   []Saver
	now      func() time.Time
}

// New は新しい Sink を作成する。uploader が nil ならアップロードは常に失敗する
func New(uploader Uploader, savers ...Saver) *Sink {
	return &Sink{
		uploader: uploader,
		savers:   savers,
		now:      time.Now,
	}
}

// UploadImage は画像を path 配下へアップロードする
//
// Uploader には DefaultUploadOptions の設定を渡し、成功時はオブジェクトのキーを、
// 失敗時は ErrUpload でラップしたエラーを返す。
func (s *Sink) UploadImage(ctx context.Context, img *camera.CapturedImage, path string) UploadResult {
	result := s.upload(ctx, img, path)
	if result.Err != nil {
		log.Error().Err(result.Err).Str("module", "sink").Str("path", path).Msg("アップロードに失敗しました")
		return result
	}

	log.Info().Str("module", "sink").Str("key", result.Key).Msg("アップロードが完了しました")
	return result
}

func (s *Sink) upload(ctx context.Context, img *camera.CapturedImage, path string) UploadResult {
	if s.uploader == nil {
		return UploadResult{Err: fmt.Errorf("%w: アップロード先が設定されていません", ErrUpload)}
	}
	if img == nil || len(img.Data) == 0 {
		return UploadResult{Err: fmt.Errorf("%w: 画像がありません", ErrUpload)}
	}

	handle, err := s.uploader.Configure(DefaultUploadOptions(path))
	if err != nil {
		return UploadResult{Err: fmt.Errorf("%w: %w", ErrUpload, err)}
	}

	var result UploadResult
	handle.OnSuccess(func(key string) {
		result.Key = key
	})
	handle.OnError(func(err error) {
		result.Err = fmt.Errorf("%w: %w", ErrUpload, err)
	})

	handle.Submit(ctx, File{
		Name:        SnapshotFilename(s.now()),
		Data:        img.Data,
		ContentType: img.MIMEType,
	})

	if result.Err == nil && result.Key == "" {
		result.Err = fmt.Errorf("%w: %w", ErrUpload, errors.New("完了通知がありません"))
	}
	return result
}
