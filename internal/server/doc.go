// Package server はスナップショット取得のHTTP APIと画面を提供します。
//
// カメラの開始・停止、MJPEGによるライブプレビュー、
// スナップショットのダウンロードとアップロードを扱います。
// カメラの状態はWebSocketで接続中の全クライアントに配信されます。
//
// APIへのリクエストは埋め込みのOpenAPIドキュメントで検証され、
// 認証が有効な場合はサインイン済みのユーザーのみが利用できます。
package server
