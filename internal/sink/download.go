package sink

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"snapcam/internal/camera"
)

// filenameLayout はISO 8601（ミリ秒、UTC）
const filenameLayout = "2006-01-02T15:04:05.000Z"

// SaveAction はダウンロード用の保存アクション
type SaveAction struct {
	Href     string `json:"href"`     // data URL
	Filename string `json:"filename"` // 保存ファイル名
}

// Saver は保存アクションを実行する
type Saver interface {
	Save(ctx context.Context, action SaveAction) error
}

// SnapshotFilename は時刻からスナップショットのファイル名を生成する
//
// ファイル名に使えない ':' と '.' は '-' に置き換える。
func SnapshotFilename(t time.Time) string {
	stamp := t.UTC().Format(filenameLayout)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return "snapshot-" + stamp + ".jpg"
}

// NewSaveAction は画像から保存アクションを作成する
func NewSaveAction(img *camera.CapturedImage, at time.Time) SaveAction {
	return SaveAction{
		Href:     camera.DataURL(img.MIMEType, img.Data),
		Filename: SnapshotFilename(at),
	}
}

// DownloadImage は保存アクションを作成して全ての Saver に渡す
//
// 保存の失敗はログに残すだけで呼び出し側には返さない。
func (s *Sink) DownloadImage(ctx context.Context, img *camera.CapturedImage, extra ...Saver) SaveAction {
	action := NewSaveAction(img, s.now())

	savers := make([]Saver, 0, len(s.savers)+len(extra))
	savers = append(savers, s.savers...)
	savers = append(savers, extra...)

	for _, saver := range savers {
		if err := saver.Save(ctx, action); err != nil {
			log.Warn().Err(err).Str("module", "sink").Str("filename", action.Filename).Msg("画像の保存に失敗しました")
		}
	}

	log.Info().Str("module", "sink").Str("filename", action.Filename).Int("bytes", img.Size()).Msg("ダウンロードを作成しました")
	return action
}

// decodeDataURL は base64 の data URL を MIMEタイプとバイト列に戻す
func decodeDataURL(href string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(href, "data:")
	if !ok {
		return "", nil, errors.New("data URL ではありません")
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URL にデータ部がありません")
	}

	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, errors.New("base64 以外の data URL はサポートしていません")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("data URL のデコードに失敗: %w", err)
	}
	return mimeType, data, nil
}
