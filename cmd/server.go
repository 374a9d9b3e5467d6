// Package main はsnapcamサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"snapcam/internal/config"
	"snapcam/internal/logging"
	"snapcam/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host        = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port        = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		configFile  = flag.String("config", os.Getenv(config.EnvConfigFile), "設定ファイル (YAML)")
		printConfig = flag.Bool("print-config", false, "有効な設定を表示して終了")
		help        = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("snapcam")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("設定の読み込みに失敗しました")
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("設定の検証に失敗しました")
	}

	if *printConfig {
		if err := cfg.WriteYAML(os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("設定の表示に失敗しました")
		}
		return
	}

	if err := logging.Setup(cfg.Log, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("ロガーの初期化に失敗しました")
	}

	ctx := context.Background()

	srv, err := server.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("サーバーの作成に失敗しました")
	}

	// サーバーを起動
	log.Info().Str("addr", cfg.ServerAddress()).Msg("snapcam サーバーを起動します")
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("サーバーの起動に失敗しました")
	}
}
