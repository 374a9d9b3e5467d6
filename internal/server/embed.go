package server

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:web api/openapi.yaml
var embedFS embed.FS

// GetStaticFS は画面の静的ファイルを返す
func GetStaticFS() (http.FileSystem, error) {
	staticFS, err := fs.Sub(embedFS, "web")
	if err != nil {
		return nil, err
	}
	return http.FS(staticFS), nil
}

// getIndexHTML は index.html の内容を返す
func getIndexHTML() ([]byte, error) {
	return embedFS.ReadFile("web/index.html")
}
