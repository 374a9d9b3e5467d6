package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"snapcam/internal/camera"
)

// EnvConfigFile は設定ファイルのパスを指定する環境変数
const EnvConfigFile = "SNAPCAM_CONFIG"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Camera   CameraConfig   `yaml:"camera" mapstructure:"camera"`
	Download DownloadConfig `yaml:"download" mapstructure:"download"`
	Upload   UploadConfig   `yaml:"upload" mapstructure:"upload"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"` // リッスンするホスト
	Port int    `yaml:"port" mapstructure:"port"` // リッスンするポート番号
	Mode string `yaml:"mode" mapstructure:"mode"` // gin のモード (debug, release, test)

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`         // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`       // 書き込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"` // シャットダウン待ち時間
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // v4l2, gocv, mock
	Device  string `yaml:"device" mapstructure:"device"`   // 空なら最初に見つかったデバイス

	FPS    int  `yaml:"fps" mapstructure:"fps"`       // フレームレート (fps)
	Width  int  `yaml:"width" mapstructure:"width"`   // 画像幅
	Height int  `yaml:"height" mapstructure:"height"` // 画像高さ
	Probe  bool `yaml:"probe" mapstructure:"probe"`   // 開始前にテストキャプチャを行う

	ReadyTimeout     time.Duration `yaml:"ready_timeout" mapstructure:"ready_timeout"`           // 最初のフレームを待つ時間
	MaxSurfacePixels int           `yaml:"max_surface_pixels" mapstructure:"max_surface_pixels"` // 描画面の上限
}

// DownloadConfig はダウンロード保存の設定
type DownloadConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"` // 空ならサーバー側には保存しない
}

// UploadConfig はアップロード先の設定
type UploadConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"`           // none, store, drive
	DefaultPath string `yaml:"default_path" mapstructure:"default_path"` // パス未指定時の接頭辞
	ChunkSize   int    `yaml:"chunk_size" mapstructure:"chunk_size"`     // レジューム可能アップロードのチャンクサイズ

	StoreRoot string `yaml:"store_root" mapstructure:"store_root"` // store の保存先

	DriveFolderID        string `yaml:"drive_folder_id" mapstructure:"drive_folder_id"`
	DriveCredentialsFile string `yaml:"drive_credentials_file" mapstructure:"drive_credentials_file"`
}

// AuthConfig は認証の設定
type AuthConfig struct {
	Enabled       bool     `yaml:"enabled" mapstructure:"enabled"`
	ClientID      string   `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret  string   `yaml:"client_secret" mapstructure:"client_secret"`
	RedirectURL   string   `yaml:"redirect_url" mapstructure:"redirect_url"`
	AuthURL       string   `yaml:"auth_url" mapstructure:"auth_url"`
	TokenURL      string   `yaml:"token_url" mapstructure:"token_url"`
	UserInfoURL   string   `yaml:"userinfo_url" mapstructure:"userinfo_url"`
	Scopes        []string `yaml:"scopes" mapstructure:"scopes"`
	SessionSecret string   `yaml:"session_secret" mapstructure:"session_secret"`
	SecureCookie  bool     `yaml:"secure_cookie" mapstructure:"secure_cookie"`
}

// LogConfig はログの設定
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // zerolog のレベル名
	Format string `yaml:"format" mapstructure:"format"` // console, json
}

// アップロード先の種類
const (
	UploadNone  = "none"
	UploadStore = "store"
	UploadDrive = "drive"
)

// defaults は設定キーとデフォルト値
var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"server.mode":             "release",
	"server.read_timeout":     10 * time.Second,
	"server.write_timeout":    0, // ストリーミング用にタイムアウト無効化
	"server.shutdown_timeout": 30 * time.Second,

	"camera.backend":            string(camera.BackendV4L2),
	"camera.device":             "",
	"camera.fps":                15,
	"camera.width":              1280,
	"camera.height":             720,
	"camera.probe":              false,
	"camera.ready_timeout":      camera.DefaultReadyTimeout,
	"camera.max_surface_pixels": camera.DefaultMaxSurfacePixels,

	"download.dir": "",

	"upload.backend":                UploadStore,
	"upload.default_path":           "public/snapshots/",
	"upload.chunk_size":             256 * 1024,
	"upload.store_root":             "./data/uploads",
	"upload.drive_folder_id":        "",
	"upload.drive_credentials_file": "",

	"auth.enabled":        false,
	"auth.client_id":      "",
	"auth.client_secret":  "",
	"auth.redirect_url":   "",
	"auth.auth_url":       "",
	"auth.token_url":      "",
	"auth.userinfo_url":   "",
	"auth.scopes":         []string{"openid", "email", "profile"},
	"auth.session_secret": "",
	"auth.secure_cookie":  false,

	"log.level":  "info",
	"log.format": "console",
}

// envBindings は設定キーと環境変数の対応
var envBindings = map[string]string{
	"server.host":                   "SERVER_HOST",
	"server.port":                   "PORT",
	"server.mode":                   "GIN_MODE",
	"camera.backend":                "CAMERA_BACKEND",
	"camera.device":                 "CAMERA_DEVICE",
	"camera.fps":                    "CAMERA_FPS",
	"camera.width":                  "CAMERA_WIDTH",
	"camera.height":                 "CAMERA_HEIGHT",
	"download.dir":                  "DOWNLOAD_DIR",
	"upload.backend":                "UPLOAD_BACKEND",
	"upload.default_path":           "UPLOAD_PATH",
	"upload.store_root":             "UPLOAD_STORE_ROOT",
	"upload.drive_folder_id":        "DRIVE_FOLDER_ID",
	"upload.drive_credentials_file": "GOOGLE_APPLICATION_CREDENTIALS",
	"auth.enabled":                  "AUTH_ENABLED",
	"auth.client_id":                "OAUTH_CLIENT_ID",
	"auth.client_secret":            "OAUTH_CLIENT_SECRET",
	"auth.redirect_url":             "OAUTH_REDIRECT_URL",
	"auth.session_secret":           "SESSION_SECRET",
	"log.level":                     "LOG_LEVEL",
	"log.format":                    "LOG_FORMAT",
}

// Load は設定を読み込む
//
// デフォルト値、SNAPCAM_CONFIG で指定したYAMLファイル、環境変数の順に上書きする。
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvConfigFile))
}

// LoadFile は path の設定ファイルを読み込む。path が空ならファイルは読まない
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("環境変数の設定に失敗 (%s): %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗 (%s): %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の解析に失敗: %w", err)
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return &cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var errs []error

	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("タイムアウトに負の値は指定できません"))
	}

	// カメラ設定の検証
	if !slices.Contains(camera.SupportedBackends(), camera.BackendType(c.Camera.Backend)) {
		errs = append(errs, fmt.Errorf("サポートされていないカメラバックエンド: %s", c.Camera.Backend))
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 || c.Camera.FPS < 0 {
		errs = append(errs, fmt.Errorf("無効な解像度またはFPS: %dx%d@%d", c.Camera.Width, c.Camera.Height, c.Camera.FPS))
	}

	// アップロード設定の検証
	switch c.Upload.Backend {
	case UploadNone:
	case UploadStore:
		if c.Upload.StoreRoot == "" {
			errs = append(errs, errors.New("store_root が設定されていません"))
		}
	case UploadDrive:
		if c.Upload.DriveCredentialsFile == "" {
			errs = append(errs, errors.New("drive_credentials_file が設定されていません"))
		}
	default:
		errs = append(errs, fmt.Errorf("サポートされていないアップロード先: %s", c.Upload.Backend))
	}

	// 認証設定の検証
	if c.Auth.Enabled {
		if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" || c.Auth.RedirectURL == "" {
			errs = append(errs, errors.New("認証を有効にするには client_id, client_secret, redirect_url が必要です"))
		}
		if c.Auth.SessionSecret == "" {
			errs = append(errs, errors.New("認証を有効にするには session_secret が必要です"))
		}
	}

	// ログ設定の検証
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("無効なログレベル: %s", c.Log.Level))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("無効なログ形式: %s", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BackendConfig はカメラバックエンドの作成設定を返す
func (c *Config) BackendConfig() camera.BackendConfig {
	return camera.BackendConfig{
		Device: c.Camera.Device,
		Width:  c.Camera.Width,
		Height: c.Camera.Height,
		FPS:    c.Camera.FPS,
		Probe:  c.Camera.Probe,
	}
}

// WriteYAML は有効な設定をYAMLで書き出す。秘密情報は伏せる
func (c *Config) WriteYAML(w io.Writer) error {
	masked := *c
	masked.Auth.ClientSecret = mask(masked.Auth.ClientSecret)
	masked.Auth.SessionSecret = mask(masked.Auth.SessionSecret)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&masked); err != nil {
		return fmt.Errorf("設定の書き出しに失敗: %w", err)
	}
	return enc.Close()
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
