package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"snapcam/internal/config"
	"snapcam/internal/logging"
	"snapcam/internal/server"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("設定の読み込みに失敗しました")
	}

	if err := logging.Setup(cfg.Log, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("ロガーの初期化に失敗しました")
	}

	ctx := context.Background()

	// サーバーを作成
	srv, err := server.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("サーバーの作成に失敗しました")
	}

	// サーバーを起動
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("サーバーの起動に失敗しました")
	}
}
