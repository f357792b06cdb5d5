package cv

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"
)

// ReadImage 读取图像文件为 BGR Mat
func ReadImage(filename string) (gocv.Mat, error) {
	mat := gocv.IMRead(filename, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("无法读取图像: %s", filename)
	}
	return mat, nil
}

// WriteImage 保存图像文件，自动创建目录
func WriteImage(filename string, img gocv.Mat) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	if ok := gocv.IMWrite(filename, img); !ok {
		return fmt.Errorf("保存图像失败: %s", filename)
	}
	return nil
}

// ImageToMat 将 image.Image 转换为 3 通道 BGR Mat
// gocv.ImageToMatRGB 输出的数据已经是 BGR 顺序
func ImageToMat(img image.Image) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(packRGBA(img))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("图像转换失败: %w", err)
	}
	return mat, nil
}

// packRGBA SubImage 得到的 *image.RGBA 原点不为 0 且共用父图的 Stride，
// 复制为紧凑排列的新图像
func packRGBA(img image.Image) image.Image {
	rgba, ok := img.(*image.RGBA)
	if !ok {
		return img
	}
	b := rgba.Bounds()
	if b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), rgba, b.Min, draw.Src)
	return dst
}

// MatToImage 将 gocv.Mat 转换为 image.Image
func MatToImage(mat gocv.Mat) (image.Image, error) {
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("Mat 转换失败: %w", err)
	}
	return img, nil
}

// ToBGR 复制并统一为 3 通道 BGR
func ToBGR(src gocv.Mat) (gocv.Mat, error) {
	dst := gocv.NewMat()
	switch src.Channels() {
	case 3:
		src.CopyTo(&dst)
	case 4:
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToBGR)
	case 1:
		gocv.CvtColor(src, &dst, gocv.ColorGrayToBGR)
	default:
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("不支持的通道数: %d", src.Channels())
	}
	return dst, nil
}

// ClampRegion 将区域裁剪到 width x height 的图像内，无交集时返回 false
func ClampRegion(r Region, width, height int) (image.Rectangle, bool) {
	rect := r.Rect().Intersect(image.Rect(0, 0, width, height))
	if rect.Empty() {
		return image.Rectangle{}, false
	}
	return rect, true
}

// CropRegion 按区域裁剪图像，返回独立的副本和实际裁剪的矩形
func CropRegion(img gocv.Mat, r Region) (gocv.Mat, image.Rectangle, bool) {
	rect, ok := ClampRegion(r, img.Cols(), img.Rows())
	if !ok {
		return gocv.NewMat(), image.Rectangle{}, false
	}
	roi := img.Region(rect)
	defer roi.Close()
	return roi.Clone(), rect, true
}

// ScaledSize 按宽度缩放后的尺寸，高度按实际得到的宽度比例计算
func ScaledSize(width, height int, scale float64) (int, int) {
	newW := int(math.Round(float64(width) * scale))
	if newW < 1 {
		return 0, 0
	}
	newH := int(math.Round(float64(height) * float64(newW) / float64(width)))
	return newW, newH
}

// ResizeToWidth 等比缩放到指定宽度，使用 INTER_AREA 插值
func ResizeToWidth(img gocv.Mat, width int) gocv.Mat {
	_, h := ScaledSize(img.Cols(), img.Rows(), float64(width)/float64(img.Cols()))
	dst := gocv.NewMat()
	gocv.Resize(img, &dst, image.Point{X: width, Y: h}, 0, 0, gocv.InterpolationArea)
	return dst
}
