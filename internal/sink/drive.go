package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveConfig はGoogle Driveアップロードの設定
type DriveConfig struct {
	FolderID  string // アップロード先フォルダ。空ならマイドライブ直下
	ChunkSize int    // レジューム可能アップロードのチャンクサイズ
}

// DriveUploader はGoogle Drive v3 を使う Uploader
type DriveUploader struct {
	service   *drive.Service
	folderID  string
	chunkSize int
}

// NewDriveUploader は新しい DriveUploader を作成する
func NewDriveUploader(ctx context.Context, cfg DriveConfig, opts ...option.ClientOption) (*DriveUploader, error) {
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("Driveサービスの作成に失敗: %w", err)
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = googleapi.DefaultUploadChunkSize
	}

	return &DriveUploader{
		service:   service,
		folderID:  cfg.FolderID,
		chunkSize: chunkSize,
	}, nil
}

// NewDriveUploaderFromCredentials はサービスアカウントのJSON鍵から DriveUploader を作成する
func NewDriveUploaderFromCredentials(ctx context.Context, cfg DriveConfig, credentialsJSON []byte) (*DriveUploader, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("認証情報の読み込みに失敗: %w", err)
	}
	return NewDriveUploader(ctx, cfg, option.WithTokenSource(creds.TokenSource))
}

// NewDriveUploaderFromToken はOAuth2トークンから DriveUploader を作成する
func NewDriveUploaderFromToken(ctx context.Context, cfg DriveConfig, oauthConfig *oauth2.Config, token *oauth2.Token) (*DriveUploader, error) {
	return NewDriveUploader(ctx, cfg, option.WithTokenSource(oauthConfig.TokenSource(ctx, token)))
}

// Configure は設定を検証してハンドルを返す
func (u *DriveUploader) Configure(opts UploadOptions) (UploadHandle, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return newUploadHandle(opts, u.transfer), nil
}

// transfer はファイルを作成し、公開設定ならリンクを知る全員に読み取りを許可する
func (u *DriveUploader) transfer(ctx context.Context, key string, file File, opts UploadOptions) (string, error) {
	metadata := u.fileMetadata(key, file)

	chunkSize := 0
	if opts.Resumable {
		chunkSize = u.chunkSize
	}

	created, err := u.service.Files.Create(metadata).
		Media(bytes.NewReader(file.Data), googleapi.ContentType(file.ContentType), googleapi.ChunkSize(chunkSize)).
		Fields("id", "name").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("Driveへのアップロードに失敗: %w", err)
	}

	if opts.AccessLevel == AccessPublic {
		_, err := u.service.Permissions.Create(created.Id, publicPermission()).
			Fields("id").
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("公開設定に失敗 (%s): %w", created.Id, err)
		}
	}

	log.Debug().Str("module", "sink").Str("key", key).Str("file_id", created.Id).Msg("Driveに保存しました")
	return created.Id, nil
}

// fileMetadata はキーからDriveのファイルメタデータを作る
func (u *DriveUploader) fileMetadata(key string, file File) *drive.File {
	metadata := &drive.File{
		Name:     path.Base(key),
		MimeType: file.ContentType,
		AppProperties: map[string]string{
			"path": key,
		},
	}
	if u.folderID != "" {
		metadata.Parents = []string{u.folderID}
	}
	return metadata
}

// publicPermission はリンクを知る全員に読み取りを許可する権限
func publicPermission() *drive.Permission {
	return &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}
}
