package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"snapcam/internal/auth"
	"snapcam/internal/camera"
	"snapcam/internal/config"
	"snapcam/internal/sink"
)

// Dependencies はサーバーが使うコンポーネント
type Dependencies struct {
	Controller *camera.Controller
	Preview    *camera.FramePreview
	Sink       *sink.Sink
	Gate       *auth.Gate
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	engine     *gin.Engine
	httpServer *http.Server

	controller *camera.Controller
	preview    *camera.FramePreview
	sink       *sink.Sink
	gate       *auth.Gate
	hub        *StatusHub

	unsubscribe func()
	done        chan struct{}
	closeOnce   sync.Once
}

// New は新しいServerインスタンスを作成する
func New(ctx context.Context, cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.Controller == nil || deps.Sink == nil || deps.Gate == nil {
		return nil, errors.New("コントローラー、シンク、認証ゲートは必須です")
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	if err := registerValidations(); err != nil {
		return nil, err
	}

	_, apiRouter, err := loadOpenAPI(ctx)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:     cfg,
		engine:     gin.New(),
		controller: deps.Controller,
		preview:    deps.Preview,
		sink:       deps.Sink,
		gate:       deps.Gate,
		hub:        NewStatusHub(),
		done:       make(chan struct{}),
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ステータス変化をWebSocketへ流す
	s.unsubscribe = s.controller.Subscribe(func(active bool, state camera.StatusState) {
		s.hub.Broadcast(newStatusMessage(active, state))
	})

	if err := s.setupRoutes(apiRouter); err != nil {
		return nil, err
	}
	return s, nil
}

// Handler はHTTPハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Info().Str("module", "server").Str("addr", s.config.ServerAddress()).Msg("HTTPサーバーを起動しています")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Info().Str("module", "server").Msg("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Info().Str("module", "server").Str("signal", sig.String()).Msg("シグナルを受信しました")
	case err := <-shutdownCh:
		s.Close()
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Info().Str("module", "server").Msg("サーバーをシャットダウンしています...")

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// ストリーミング中のハンドラーを先に終わらせる
	s.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Info().Str("module", "server").Msg("サーバーが正常にシャットダウンされました")
	return nil
}

// Close はストリーミングとWebSocketを終了し、カメラを解放する
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.unsubscribe()
		s.hub.Close()
		if err := s.controller.Close(); err != nil {
			log.Error().Err(err).Str("module", "server").Msg("カメラの解放に失敗しました")
		}
	})
}
