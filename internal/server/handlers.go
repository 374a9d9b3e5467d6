package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"snapcam/internal/camera"
	"snapcam/internal/sink"
)

// previewCheckInterval はプレビュー配信中にカメラの停止を確認する間隔
const previewCheckInterval = 500 * time.Millisecond

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse はカメラ状態のレスポンス
type StatusResponse struct {
	Active    bool               `json:"active"`
	State     camera.Status      `json:"state"`
	SessionID string             `json:"session_id,omitempty"`
	Status    camera.StatusState `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
}

// UploadRequest はアップロードのリクエスト
type UploadRequest struct {
	Path string `json:"path" binding:"omitempty,objectpath"`
}

// UploadResponse はアップロードのレスポンス
type UploadResponse struct {
	Key string `json:"key"`
}

// ErrorResponse はエラーレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: code, Message: message, Timestamp: time.Now()}
}

// handleHealth はヘルスチェックエンドポイントの実装
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// handleIndex は画面を返す
func (s *Server) handleIndex(c *gin.Context) {
	html, err := getIndexHTML()
	if err != nil {
		c.JSON(http.StatusInternalServerError, newErrorResponse("internal_error", "画面の読み込みに失敗しました"))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

// handleOpenAPI はOpenAPIドキュメントを返す
func (s *Server) handleOpenAPI(c *gin.Context) {
	data, err := embedFS.ReadFile("api/openapi.yaml")
	if err != nil {
		c.JSON(http.StatusInternalServerError, newErrorResponse("internal_error", "ドキュメントの読み込みに失敗しました"))
		return
	}
	c.Data(http.StatusOK, "application/yaml", data)
}

// handleStatus はカメラの状態を返す
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.statusResponse())
}

// handleStatusWebSocket はステータスのWebSocket配信を開始する
func (s *Server) handleStatusWebSocket(c *gin.Context) {
	s.hub.Handle(c, newStatusMessage(s.controller.Active(), s.controller.Status()))
}

// handleStartCamera はカメラを開始する
func (s *Server) handleStartCamera(c *gin.Context) {
	if _, err := s.controller.StartCamera(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.statusResponse())
}

// handleStopCamera はカメラを停止する
func (s *Server) handleStopCamera(c *gin.Context) {
	s.controller.StopCamera()
	c.JSON(http.StatusOK, s.statusResponse())
}

// handleDownloadSnapshot はスナップショットを添付ファイルとして返す
func (s *Server) handleDownloadSnapshot(c *gin.Context) {
	img, err := s.controller.TakeSnapshot()
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.Header("X-Snapshot-Width", strconv.Itoa(img.Width))
	c.Header("X-Snapshot-Height", strconv.Itoa(img.Height))
	s.sink.DownloadImage(c.Request.Context(), img, sink.NewResponseSaver(c.Writer))
}

// handleUploadSnapshot はスナップショットをアップロード先へ送る
func (s *Server) handleUploadSnapshot(c *gin.Context) {
	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "アップロード先のパスが不正です",
			Details:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	path := req.Path
	if path == "" {
		path = s.config.Upload.DefaultPath
	}

	img, err := s.controller.TakeSnapshot()
	if err != nil {
		s.respondError(c, err)
		return
	}

	result := s.sink.UploadImage(c.Request.Context(), img, path)
	if result.Err != nil {
		s.respondError(c, result.Err)
		return
	}
	c.JSON(http.StatusOK, UploadResponse{Key: result.Key})
}

// handlePreview はライブプレビューをMJPEGで配信する
func (s *Server) handlePreview(c *gin.Context) {
	if !s.controller.Active() || s.preview == nil {
		s.respondError(c, camera.ErrNotReady)
		return
	}

	frames, unsubscribe := s.preview.SubscribeFrames()
	defer unsubscribe()

	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	// 最新フレームを先に送る
	if frame, ok := s.preview.LatestFrame(); ok {
		if err := writeMJPEGFrame(writer, frame); err != nil {
			return
		}
		flusher.Flush()
	}

	ticker := time.NewTicker(previewCheckInterval)
	defer ticker.Stop()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			return

		case <-s.done:
			return

		case <-ticker.C:
			if !s.controller.Active() {
				return
			}

		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := writeMJPEGFrame(writer, frame); err != nil {
				log.Debug().Err(err).Str("module", "server").Msg("プレビューの書き込みに失敗しました")
				return
			}
			flusher.Flush()
		}
	}
}

// writeMJPEGFrame はmultipartの1パートとしてフレームを書き込む
func writeMJPEGFrame(w io.Writer, frame []byte) error {
	header := "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: " + strconv.Itoa(len(frame)) + "\r\n\r\n"
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// statusResponse は現在の状態からレスポンスを作る
func (s *Server) statusResponse() StatusResponse {
	resp := StatusResponse{
		State:     camera.StatusInactive,
		Status:    s.controller.Status(),
		Timestamp: time.Now(),
	}
	if session, ok := s.controller.Session(); ok {
		resp.Active = true
		resp.State = camera.StatusActive
		resp.SessionID = session.ID
	}
	return resp
}

// respondError はエラーをHTTPステータスに変換して返す
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)

	message := err.Error()
	if state := s.controller.Status(); state.Error != nil && code != "upload_failed" {
		message = *state.Error
	}

	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Details:   err.Error(),
		Timestamp: time.Now(),
	})
}

// errorStatus はエラーに対応するHTTPステータスとエラーコードを返す
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, camera.ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, camera.ErrPermissionOrDevice):
		return http.StatusServiceUnavailable, "camera_unavailable"
	case errors.Is(err, camera.ErrRenderContext):
		return http.StatusInternalServerError, "render_failed"
	case errors.Is(err, sink.ErrUpload):
		return http.StatusBadGateway, "upload_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
