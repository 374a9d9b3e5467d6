package sink

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"unicode"
)

// ErrUpload はアップロード先から返された失敗
var ErrUpload = errors.New("upload failed")

// AccessLevel はアップロード先での公開範囲
type AccessLevel string

const (
	AccessPublic  AccessLevel = "public"  // パスを知っていれば誰でも読める
	AccessPrivate AccessLevel = "private" // 所有者のみ
)

// maxPathLength はパス接頭辞の上限
const maxPathLength = 1024

// UploadOptions はアップロード先に渡す設定
type UploadOptions struct {
	AcceptedTypes []string    `json:"acceptedTypes"`
	Path          string      `json:"path"`
	MaxFileCount  int         `json:"maxFileCount"`
	Resumable     bool        `json:"resumable"`
	AccessLevel   AccessLevel `json:"accessLevel"`
}

// DefaultUploadOptions はスナップショット用の設定を返す
func DefaultUploadOptions(path string) UploadOptions {
	return UploadOptions{
		AcceptedTypes: []string{"image/*"},
		Path:          path,
		MaxFileCount:  1,
		Resumable:     true,
		AccessLevel:   AccessPublic,
	}
}

// Validate は設定値の妥当性をチェックする
func (o UploadOptions) Validate() error {
	if o.MaxFileCount < 1 {
		return fmt.Errorf("無効な最大ファイル数: %d", o.MaxFileCount)
	}
	if len(o.AcceptedTypes) == 0 {
		return errors.New("受け付けるファイル形式が指定されていません")
	}
	switch o.AccessLevel {
	case AccessPublic, AccessPrivate:
	default:
		return fmt.Errorf("無効な公開範囲: %s", o.AccessLevel)
	}
	if !ValidPathPrefix(o.Path) {
		return fmt.Errorf("無効なパス: %q", o.Path)
	}
	return nil
}

// File はアップロードするファイル
type File struct {
	Name        string
	Data        []byte
	ContentType string
}

// UploadResult はアップロードの結果
type UploadResult struct {
	Key string
	Err error
}

// Uploader はアップロード先を表す
type Uploader interface {
	// Configure は設定を検証して送信用のハンドルを返す
	Configure(opts UploadOptions) (UploadHandle, error)
}

// UploadHandle は設定済みのアップロード
//
// Submit の完了前に、ファイルごとに OnSuccess か OnError のどちらかが呼ばれる。
type UploadHandle interface {
	OnSuccess(fn func(key string))
	OnError(fn func(err error))
	Submit(ctx context.Context, files ...File)
}

// transferFunc は1ファイルを key に転送し、保存先でのキーを返す
type transferFunc func(ctx context.Context, key string, file File, opts UploadOptions) (string, error)

// uploadHandle は各 Uploader 共通のハンドル実装
type uploadHandle struct {
	opts     UploadOptions
	transfer transferFunc

	mu        sync.Mutex
	onSuccess []func(string)
	onError   []func(error)
}

func newUploadHandle(opts UploadOptions, transfer transferFunc) *uploadHandle {
	return &uploadHandle{opts: opts, transfer: transfer}
}

// OnSuccess は成功時のコールバックを登録する
func (h *uploadHandle) OnSuccess(fn func(key string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onSuccess = append(h.onSuccess, fn)
}

// OnError は失敗時のコールバックを登録する
func (h *uploadHandle) OnError(fn func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, fn)
}

// Submit はファイルを順に転送する
func (h *uploadHandle) Submit(ctx context.Context, files ...File) {
	if len(files) == 0 {
		h.fail(errors.New("ファイルが指定されていません"))
		return
	}
	if len(files) > h.opts.MaxFileCount {
		h.fail(fmt.Errorf("ファイル数が上限を超えています: %d > %d", len(files), h.opts.MaxFileCount))
		return
	}

	for _, file := range files {
		key, err := h.submitOne(ctx, file)
		if err != nil {
			h.fail(err)
			continue
		}
		h.succeed(key)
	}
}

func (h *uploadHandle) submitOne(ctx context.Context, file File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	contentType, err := acceptedType(h.opts.AcceptedTypes, file.Data)
	if err != nil {
		return "", err
	}
	file.ContentType = contentType

	key, err := ObjectKey(h.opts.Path, file.Name)
	if err != nil {
		return "", err
	}

	return h.transfer(ctx, key, file, h.opts)
}

func (h *uploadHandle) succeed(key string) {
	h.mu.Lock()
	callbacks := append([]func(string){}, h.onSuccess...)
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn(key)
	}
}

func (h *uploadHandle) fail(err error) {
	h.mu.Lock()
	callbacks := append([]func(error){}, h.onError...)
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn(err)
	}
}

// ValidPathPrefix はパス接頭辞として使えるかを返す
//
// 空文字は許可する。絶対パスと ".." を含むパスは許可しない。
func ValidPathPrefix(prefix string) bool {
	if prefix == "" {
		return true
	}
	if len(prefix) > maxPathLength || strings.HasPrefix(prefix, "/") || strings.Contains(prefix, `\`) {
		return false
	}
	for _, r := range prefix {
		if unicode.IsControl(r) {
			return false
		}
	}
	for _, segment := range strings.Split(prefix, "/") {
		if segment == ".." {
			return false
		}
	}
	return true
}

// ObjectKey は接頭辞とファイル名から保存先のキーを作る
func ObjectKey(prefix, name string) (string, error) {
	if !ValidPathPrefix(prefix) {
		return "", fmt.Errorf("無効なパス: %q", prefix)
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("無効なファイル名: %q", name)
	}
	return path.Join(prefix, name), nil
}
