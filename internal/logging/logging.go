// Package logging はzerologのグローバルロガーを設定します。
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"snapcam/internal/config"
)

// Setup は設定に従ってグローバルロガーを初期化する
func Setup(cfg config.LogConfig, out io.Writer) error {
	logger, level, err := New(cfg, out)
	if err != nil {
		return err
	}
	log.Logger = logger
	zerolog.SetGlobalLevel(level)
	return nil
}

// New は設定に従ったロガーとレベルを返す
func New(cfg config.LogConfig, out io.Writer) (zerolog.Logger, zerolog.Level, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Logger{}, zerolog.NoLevel, fmt.Errorf("ログレベルの解析に失敗: %w", err)
		}
		level = parsed
	}

	var w io.Writer
	switch cfg.Format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json":
		w = out
	default:
		return zerolog.Logger{}, zerolog.NoLevel, fmt.Errorf("無効なログ形式: %s", cfg.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), level, nil
}
