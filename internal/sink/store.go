package sink

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// DefaultChunkSize はレジューム可能アップロードの1回の書き込み量
const DefaultChunkSize = 256 * 1024

// partSuffix は転送途中のファイルに付ける拡張子
const partSuffix = ".part"

// StoreUploader は afero ファイルシステムをオブジェクトストアとして使う Uploader
//
// レジューム可能な転送では .part ファイルにチャンク単位で追記し、完了後に
// 正式な名前へ変更する。同じキーの .part が残っていれば続きから書き込む。
type StoreUploader struct {
	fs        afero.Fs
	root      string
	chunkSize int
}

// NewStoreUploader は新しい StoreUploader を作成する
func NewStoreUploader(fs afero.Fs, root string, chunkSize int) *StoreUploader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &StoreUploader{fs: fs, root: root, chunkSize: chunkSize}
}

// Configure は設定を検証してハンドルを返す
func (u *StoreUploader) Configure(opts UploadOptions) (UploadHandle, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return newUploadHandle(opts, u.transfer), nil
}

// transfer は1ファイルをストアに書き込む
func (u *StoreUploader) transfer(ctx context.Context, key string, file File, opts UploadOptions) (string, error) {
	target := filepath.Join(u.root, filepath.FromSlash(key))
	if err := u.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("保存先ディレクトリの作成に失敗: %w", err)
	}

	perm := filePerm(opts.AccessLevel)

	if !opts.Resumable {
		if err := afero.WriteFile(u.fs, target, file.Data, perm); err != nil {
			return "", fmt.Errorf("ファイルの書き込みに失敗: %w", err)
		}
		return key, nil
	}

	if err := u.writeChunks(ctx, target+partSuffix, file.Data, perm); err != nil {
		return "", err
	}
	if err := u.fs.Rename(target+partSuffix, target); err != nil {
		return "", fmt.Errorf("ファイル名の変更に失敗: %w", err)
	}

	log.Debug().Str("module", "sink").Str("key", key).Str("type", file.ContentType).Msg("ストアに保存しました")
	return key, nil
}

// writeChunks は part ファイルにチャンク単位で追記する
func (u *StoreUploader) writeChunks(ctx context.Context, partPath string, data []byte, perm os.FileMode) (err error) {
	offset := u.resumeOffset(partPath, data)

	flags := os.O_CREATE | os.O_WRONLY
	if offset == 0 {
		flags |= os.O_TRUNC
	}

	f, err := u.fs.OpenFile(partPath, flags, perm)
	if err != nil {
		return fmt.Errorf("partファイルのオープンに失敗: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("partファイルのクローズに失敗: %w", cerr)
		}
	}()

	if offset > 0 {
		log.Debug().Str("module", "sink").Str("path", partPath).Int64("offset", offset).Msg("転送を再開します")
	}

	for offset < int64(len(data)) {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := offset + int64(u.chunkSize)
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		if _, err := f.WriteAt(data[offset:end], offset); err != nil {
			return fmt.Errorf("チャンクの書き込みに失敗: %w", err)
		}
		offset = end
	}
	return nil
}

// resumeOffset は残っている part ファイルから再開できる位置を返す
//
// part の内容が data の先頭と一致する場合だけ続きから書く。それ以外は 0。
func (u *StoreUploader) resumeOffset(partPath string, data []byte) int64 {
	existing, err := afero.ReadFile(u.fs, partPath)
	if err != nil || len(existing) == 0 {
		return 0
	}
	if len(existing) > len(data) || !bytes.Equal(existing, data[:len(existing)]) {
		log.Debug().Str("module", "sink").Str("path", partPath).Msg("内容の異なるpartファイルを破棄します")
		return 0
	}
	return int64(len(existing))
}

// filePerm は公開範囲に応じたパーミッションを返す
func filePerm(level AccessLevel) os.FileMode {
	if level == AccessPublic {
		return 0o644
	}
	return 0o600
}
