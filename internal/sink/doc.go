// Package sink はスナップショット画像の保存先を提供する。
//
// 責務:
//   - ダウンロード用の保存アクション（data URL とファイル名）の生成と配送
//   - アップロード先への委譲と成功・失敗コールバックの受け取り
//
// 使い分け:
//   - DownloadImage: 画像をその場で保存する。呼び出し側にはエラーを返さない
//   - UploadImage: Uploader に設定を渡して1ファイルを送信し、UploadResult を返す
//
// Uploader の実装:
//   - DriveUploader: Google Drive v3 へのレジューム可能アップロード
//   - StoreUploader: afero ファイルシステム上のオブジェクトストア（ローカル・開発用）
//
// 転送の再試行やキューイングは行わない。
package sink
