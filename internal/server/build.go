package server

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"snapcam/internal/auth"
	"snapcam/internal/camera"
	"snapcam/internal/config"
	"snapcam/internal/sink"
)

// Build は設定からカメラ、シンク、認証ゲートを組み立てて Server を作成する
func Build(ctx context.Context, cfg *config.Config) (*Server, error) {
	devices, err := camera.NewMediaDevices(camera.BackendType(cfg.Camera.Backend), cfg.BackendConfig())
	if err != nil {
		return nil, fmt.Errorf("カメラバックエンドの作成に失敗: %w", err)
	}

	preview := camera.NewFramePreview(cfg.Camera.ReadyTimeout)
	controller := camera.NewController(devices, preview, camera.NewRGBASurfaceFactory(cfg.Camera.MaxSurfacePixels))

	uploader, err := newUploader(ctx, cfg.Upload)
	if err != nil {
		return nil, err
	}

	var savers []sink.Saver
	if cfg.Download.Dir != "" {
		savers = append(savers, sink.NewDirSaver(afero.NewOsFs(), cfg.Download.Dir))
		log.Info().Str("module", "server").Str("dir", cfg.Download.Dir).Msg("スナップショットをサーバーにも保存します")
	}

	gate, err := auth.NewGate(authConfig(cfg.Auth))
	if err != nil {
		return nil, fmt.Errorf("認証ゲートの作成に失敗: %w", err)
	}

	return New(ctx, cfg, Dependencies{
		Controller: controller,
		Preview:    preview,
		Sink:       sink.New(uploader, savers...),
		Gate:       gate,
	})
}

// newUploader は設定されたアップロード先の Uploader を返す。none なら nil
func newUploader(ctx context.Context, cfg config.UploadConfig) (sink.Uploader, error) {
	switch cfg.Backend {
	case config.UploadStore:
		log.Info().Str("module", "server").Str("root", cfg.StoreRoot).Msg("ファイルストアにアップロードします")
		return sink.NewStoreUploader(afero.NewOsFs(), cfg.StoreRoot, cfg.ChunkSize), nil

	case config.UploadDrive:
		credentials, err := os.ReadFile(cfg.DriveCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("Drive認証情報の読み込みに失敗: %w", err)
		}
		uploader, err := sink.NewDriveUploaderFromCredentials(ctx, sink.DriveConfig{
			FolderID:  cfg.DriveFolderID,
			ChunkSize: cfg.ChunkSize,
		}, credentials)
		if err != nil {
			return nil, err
		}
		log.Info().Str("module", "server").Str("folder", cfg.DriveFolderID).Msg("Google Driveにアップロードします")
		return uploader, nil

	case config.UploadNone, "":
		log.Warn().Str("module", "server").Msg("アップロード先が設定されていません")
		return nil, nil

	default:
		return nil, fmt.Errorf("サポートされていないアップロード先: %s", cfg.Backend)
	}
}

func authConfig(cfg config.AuthConfig) auth.Config {
	secret := cfg.SessionSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
		log.Warn().Str("module", "server").Msg("セッションの秘密鍵が未設定のため一時的な鍵を生成しました")
	}

	return auth.Config{
		Enabled:       cfg.Enabled,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		RedirectURL:   cfg.RedirectURL,
		AuthURL:       cfg.AuthURL,
		TokenURL:      cfg.TokenURL,
		UserInfoURL:   cfg.UserInfoURL,
		Scopes:        cfg.Scopes,
		SessionSecret: secret,
		SecureCookie:  cfg.SecureCookie,
	}
}
