// Package camera カメラストリームの取得・解放とスナップショット生成を担う
//
// # 責務
// - メディアデバイスからのビデオストリーム取得（GetUserMedia相当）
// - ストリームのライフサイクル管理（開始・停止・破棄時の確実な解放）
// - プレビューへのストリーム接続と最新フレームの保持
// - オフスクリーン描画面へのフレーム転写とJPEGエンコード
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - カメラを開始・停止したい
// - 現在のプレビューから静止画を1枚取得したい
// - カメラ状態の変化を購読したい
//
// # 仕様
// - Controller: 1インスタンスにつき同時に開けるストリームは1本のみ
// - 状態遷移: Idle -> (開始成功) -> Active -> (停止 | Close) -> Idle
// - 開始失敗時は Idle のまま ErrPermissionOrDevice を返す
// - スナップショットは品質0.9のJPEG、サイズはフレームの実解像度
// - MediaDevices の実装: V4L2(ffmpeg経由)、GoCV(ビルドタグ gocv)、Mock
//
// # 前提要件
//   - v4l-utils: カメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: V4L2バックエンドのキャプチャに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
