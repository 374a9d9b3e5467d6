package sink

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// DirSaver はダウンロードディレクトリへ画像を書き出す
type DirSaver struct {
	fs  afero.Fs
	dir string
}

// NewDirSaver は新しい DirSaver を作成する
func NewDirSaver(fs afero.Fs, dir string) *DirSaver {
	return &DirSaver{fs: fs, dir: dir}
}

// Save は data URL をデコードしてファイルに保存する
//
// 同名のファイルがある場合は連番を付ける。
func (s *DirSaver) Save(ctx context.Context, action SaveAction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, data, err := decodeDataURL(action.Href)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("ダウンロードディレクトリの作成に失敗: %w", err)
	}

	target, err := s.availablePath(action.Filename)
	if err != nil {
		return err
	}

	if err := afero.WriteFile(s.fs, target, data, 0o644); err != nil {
		return fmt.Errorf("ファイルの書き込みに失敗: %w", err)
	}
	return nil
}

// availablePath は既存ファイルと衝突しない保存先を返す
func (s *DirSaver) availablePath(filename string) (string, error) {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := filepath.Join(s.dir, base)
	for i := 1; ; i++ {
		exists, err := afero.Exists(s.fs, candidate)
		if err != nil {
			return "", fmt.Errorf("ファイルの確認に失敗: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = filepath.Join(s.dir, stem+" ("+strconv.Itoa(i)+")"+ext)
	}
}

// ResponseSaver はHTTPレスポンスに添付ファイルとして書き出す
type ResponseSaver struct {
	w http.ResponseWriter
}

// NewResponseSaver は新しい ResponseSaver を作成する
func NewResponseSaver(w http.ResponseWriter) *ResponseSaver {
	return &ResponseSaver{w: w}
}

// Save はレスポンスヘッダーを設定して画像を書き込む
func (s *ResponseSaver) Save(_ context.Context, action SaveAction) error {
	mimeType, data, err := decodeDataURL(action.Href)
	if err != nil {
		return err
	}

	header := s.w.Header()
	header.Set("Content-Type", mimeType)
	header.Set("Content-Length", strconv.Itoa(len(data)))
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": action.Filename}))
	s.w.WriteHeader(http.StatusOK)

	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("レスポンスの書き込みに失敗: %w", err)
	}
	return nil
}
