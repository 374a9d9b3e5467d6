package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestConfigLoad は設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	// 設定を読み込む
	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// サーバー設定の検証
	if cfg.Server.Host == "" {
		t.Error("サーバーホストが設定されていません")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		t.Errorf("無効なポート番号: %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 {
		t.Error("読み込みタイムアウトが設定されていません")
	}
	// WriteTimeout は 0（無効）でも正常
	if cfg.Server.WriteTimeout < 0 {
		t.Error("書き込みタイムアウトが負の値です")
	}

	// カメラ設定の検証
	if cfg.Camera.Backend != "v4l2" {
		t.Errorf("デフォルトのバックエンドが v4l2 ではありません: %s", cfg.Camera.Backend)
	}
	if cfg.Camera.FPS <= 0 || cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		t.Errorf("デフォルトの解像度が設定されていません: %dx%d@%d", cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS)
	}
	if cfg.Camera.ReadyTimeout <= 0 {
		t.Error("フレーム待ち時間が設定されていません")
	}

	// アップロード・認証設定の検証
	if cfg.Upload.Backend != UploadStore {
		t.Errorf("デフォルトのアップロード先が store ではありません: %s", cfg.Upload.Backend)
	}
	if cfg.Auth.Enabled {
		t.Error("認証はデフォルトで無効のはずです")
	}
	if len(cfg.Auth.Scopes) == 0 {
		t.Error("スコープが設定されていません")
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Host: "localhost", Port: 8080},
			Camera: CameraConfig{Backend: "mock", Width: 640, Height: 480, FPS: 15},
			Upload: UploadConfig{Backend: UploadStore, StoreRoot: "/tmp/store"},
			Log:    LogConfig{Level: "info", Format: "console"},
		}
	}

	testCases := []struct {
		name      string
		modify    func(*Config)
		expectErr bool
	}{
		{name: "正常な設定", modify: func(*Config) {}},
		{name: "無効なポート番号", modify: func(c *Config) { c.Server.Port = 0 }, expectErr: true},
		{name: "ポート番号が大きすぎる", modify: func(c *Config) { c.Server.Port = 70000 }, expectErr: true},
		{name: "負のタイムアウト", modify: func(c *Config) { c.Server.ReadTimeout = -time.Second }, expectErr: true},
		{name: "未知のバックエンド", modify: func(c *Config) { c.Camera.Backend = "dshow" }, expectErr: true},
		{name: "負の解像度", modify: func(c *Config) { c.Camera.Width = -1 }, expectErr: true},
		{name: "storeの保存先なし", modify: func(c *Config) { c.Upload.StoreRoot = "" }, expectErr: true},
		{name: "driveの認証情報なし", modify: func(c *Config) { c.Upload.Backend = UploadDrive }, expectErr: true},
		{name: "アップロード無効", modify: func(c *Config) { c.Upload.Backend = UploadNone }},
		{name: "未知のアップロード先", modify: func(c *Config) { c.Upload.Backend = "s3" }, expectErr: true},
		{name: "認証情報なしで認証有効", modify: func(c *Config) { c.Auth.Enabled = true }, expectErr: true},
		{
			name: "認証有効",
			modify: func(c *Config) {
				c.Auth = AuthConfig{
					Enabled:       true,
					ClientID:      "id",
					ClientSecret:  "secret",
					RedirectURL:   "http://localhost:8080/auth/callback",
					SessionSecret: "session",
				}
			},
		},
		{name: "無効なログレベル", modify: func(c *Config) { c.Log.Level = "verbose" }, expectErr: true},
		{name: "無効なログ形式", modify: func(c *Config) { c.Log.Format = "xml" }, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.modify(cfg)

			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 9090,
		},
	}

	expected := "127.0.0.1:9090"
	if addr := cfg.ServerAddress(); addr != expected {
		t.Errorf("期待されるアドレス: %s, 実際: %s", expected, addr)
	}
}

// TestEnvironmentVariables は環境変数からの設定読み込みをテストする
func TestEnvironmentVariables(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("SERVER_HOST", "192.168.1.100")
	t.Setenv("PORT", "3000")
	t.Setenv("CAMERA_BACKEND", "mock")
	t.Setenv("CAMERA_DEVICE", "/dev/video2")
	t.Setenv("UPLOAD_BACKEND", "none")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host != "192.168.1.100" {
		t.Errorf("環境変数からホストが読み込まれていません: %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("環境変数からポートが読み込まれていません: %d", cfg.Server.Port)
	}
	if cfg.Camera.Backend != "mock" {
		t.Errorf("環境変数からバックエンドが読み込まれていません: %s", cfg.Camera.Backend)
	}
	if cfg.Camera.Device != "/dev/video2" {
		t.Errorf("環境変数からデバイスが読み込まれていません: %s", cfg.Camera.Device)
	}
	if cfg.Upload.Backend != UploadNone {
		t.Errorf("環境変数からアップロード先が読み込まれていません: %s", cfg.Upload.Backend)
	}
}

// TestLoadFile はYAMLファイルと環境変数の優先順位をテストする
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapcam.yaml")
	content := `
server:
  port: 9000
  read_timeout: 5s
camera:
  backend: mock
  width: 320
  height: 240
upload:
  backend: store
  store_root: /var/lib/snapcam
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("設定ファイルの作成に失敗しました: %v", err)
	}

	// 環境変数はファイルより優先される
	t.Setenv("PORT", "9100")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("環境変数が優先されていません: %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("ファイルのタイムアウトが読み込まれていません: %v", cfg.Server.ReadTimeout)
	}
	if cfg.Camera.Width != 320 || cfg.Camera.Height != 240 {
		t.Errorf("ファイルの解像度が読み込まれていません: %dx%d", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Upload.StoreRoot != "/var/lib/snapcam" {
		t.Errorf("ファイルの保存先が読み込まれていません: %s", cfg.Upload.StoreRoot)
	}
	// ファイルにないキーはデフォルト値
	if cfg.Camera.FPS != 15 {
		t.Errorf("デフォルトのFPSが使われていません: %d", cfg.Camera.FPS)
	}
}

// TestLoadFileErrors は読み込みエラーをテストする
func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("camera:\n  backend: dshow\n"), 0o644); err != nil {
		t.Fatalf("設定ファイルの作成に失敗しました: %v", err)
	}

	testCases := []struct {
		name string
		path string
	}{
		{name: "存在しないファイル", path: filepath.Join(dir, "missing.yaml")},
		{name: "検証エラー", path: invalid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadFile(tc.path); err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
		})
	}
}

// TestWriteYAML は秘密情報を伏せて書き出すことをテストする
func TestWriteYAML(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Host: "localhost", Port: 8080, ReadTimeout: 10 * time.Second},
		Auth:   AuthConfig{ClientID: "client", ClientSecret: "top-secret", SessionSecret: "cookie-secret"},
	}

	var buf bytes.Buffer
	if err := cfg.WriteYAML(&buf); err != nil {
		t.Fatalf("書き出しに失敗しました: %v", err)
	}

	out := buf.String()
	for _, secret := range []string{"top-secret", "cookie-secret"} {
		if strings.Contains(out, secret) {
			t.Errorf("秘密情報が出力されています: %s", secret)
		}
	}
	for _, want := range []string{"port: 8080", "read_timeout: 10s", "client_id: client"} {
		if !strings.Contains(out, want) {
			t.Errorf("出力に %q が含まれていません:\n%s", want, out)
		}
	}

	// 元の設定は変更されない
	if cfg.Auth.ClientSecret != "top-secret" {
		t.Error("元の設定が変更されています")
	}
}
