package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// loadOpenAPI は埋め込みのOpenAPIドキュメントを読み込んで検証する
func loadOpenAPI(ctx context.Context) (*openapi3.T, routers.Router, error) {
	data, err := embedFS.ReadFile("api/openapi.yaml")
	if err != nil {
		return nil, nil, fmt.Errorf("OpenAPIドキュメントの読み込みに失敗: %w", err)
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, nil, fmt.Errorf("OpenAPIドキュメントの解析に失敗: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, nil, fmt.Errorf("OpenAPIドキュメントが不正です: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("OpenAPIルーターの作成に失敗: %w", err)
	}
	return doc, router, nil
}

// openAPIValidator はリクエストをOpenAPIドキュメントで検証するミドルウェア
//
// ドキュメントにないルートはそのまま通す。
func openAPIValidator(router routers.Router) gin.HandlerFunc {
	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(c *gin.Context) {
		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			if !errors.Is(err, routers.ErrPathNotFound) && !errors.Is(err, routers.ErrMethodNotAllowed) {
				log.Debug().Err(err).Str("module", "server").Str("path", c.Request.URL.Path).Msg("ルートの解決に失敗しました")
			}
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options:    options,
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Error:     "invalid_request",
				Message:   "リクエストが不正です",
				Details:   err.Error(),
				Timestamp: time.Now(),
			})
			return
		}

		c.Next()
	}
}
