package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"snapcam/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantLevel zerolog.Level
		wantErr   bool
	}{
		{name: "デフォルト", cfg: config.LogConfig{}, wantLevel: zerolog.InfoLevel},
		{name: "debug json", cfg: config.LogConfig{Level: "debug", Format: "json"}, wantLevel: zerolog.DebugLevel},
		{name: "warn console", cfg: config.LogConfig{Level: "warn", Format: "console"}, wantLevel: zerolog.WarnLevel},
		{name: "無効なレベル", cfg: config.LogConfig{Level: "loud"}, wantErr: true},
		{name: "無効な形式", cfg: config.LogConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, level, err := New(tt.cfg, &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && level != tt.wantLevel {
				t.Errorf("level = %v, want %v", level, tt.wantLevel)
			}
		})
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(config.LogConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug().Msg("出力されない")
	logger.Info().Str("module", "test").Msg("出力される")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("出力行数 = %d, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("JSONの解析に失敗しました: %v", err)
	}
	if entry["module"] != "test" || entry["message"] != "出力される" || entry["level"] != "info" {
		t.Errorf("ログの内容が不正です: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("time フィールドがありません")
	}
}
