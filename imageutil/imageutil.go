// imageutil パッケージは画像レジストレーションのための画像処理ユーティリティを提供します
package imageutil

// このファイルは、imageutil パッケージのエントリーポイントとして機能し、
// 各ファイルに分割された機能へのアクセスポイントを提供します。
//
// 機能は以下のファイルに分割されています：
// - floatimage.go: 物理座標を持つ浮動小数点画像と補間
// - imageloader.go: 画像の読み込み・保存 (PNG/JPEG/TIFF/BMP/DICOM)
// - filters.go: メディアン・ガウシアン・勾配強度・縮小フィルタ
// - arithmetic.go: 差分・輝度変換・統計量
// - mask.go: 評価領域を制限するマスク
// - analyzer.go: 整数オフセットの総当たり探索
// - detector.go / rectangles.go / renderer.go: 残差領域の検出と可視化
