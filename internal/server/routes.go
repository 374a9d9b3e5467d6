package server

import (
	"net/http"

	"github.com/getkin/kin-openapi/routers"
	"github.com/gin-gonic/gin"
)

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes(apiRouter routers.Router) error {
	r := s.engine
	r.Use(requestLogger(), gin.Recovery())
	r.Use(s.gate.Sessions())

	// ヘルスチェックエンドポイント
	r.GET("/health", s.handleHealth)

	// 認証
	s.gate.RegisterRoutes(r)

	// 静的ファイル
	staticFS, err := GetStaticFS()
	if err != nil {
		return err
	}
	r.StaticFS("/static", staticFS)
	r.GET("/api/openapi.yaml", s.handleOpenAPI)

	// 画面
	r.GET("/", s.gate.RequireUser(), s.handleIndex)

	// APIエンドポイント
	api := r.Group("/api", s.gate.RequireUser(), openAPIValidator(apiRouter))
	api.GET("/status", s.handleStatus)
	api.GET("/status/ws", s.handleStatusWebSocket)
	api.POST("/camera/start", s.handleStartCamera)
	api.POST("/camera/stop", s.handleStopCamera)
	api.GET("/camera/preview", s.handlePreview)
	api.POST("/snapshot/download", s.handleDownloadSnapshot)
	api.POST("/snapshot/upload", s.handleUploadSnapshot)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, newErrorResponse("not_found", "指定されたパスが見つかりません"))
	})
	return nil
}
