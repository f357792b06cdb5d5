package cv

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"testing"

	"github.com/golang/freetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"gocv.io/x/gocv"
)

// solidImage 纯色图像
func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// noiseImage 固定种子的随机噪声图像
func noiseImage(w, h int, seed int64) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(r.Intn(256))
		img.Pix[i+1] = uint8(r.Intn(256))
		img.Pix[i+2] = uint8(r.Intn(256))
		img.Pix[i+3] = 255
	}
	return img
}

// lowContrastImage 在 base 灰度上叠加 ±amp 的随机噪声
func lowContrastImage(w, h int, base, amp uint8, seed int64) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			img.Pix[i+c] = base - amp + uint8(r.Intn(int(2*amp)+1))
		}
		img.Pix[i+3] = 255
	}
	return img
}

// quadrantImage 带黑色边框的四象限图案：红 绿 / 蓝 白
// 边框使放大后的图案内部不会出现与模板完全相同的窗口
func quadrantImage(size int) *image.RGBA {
	img := solidImage(size, size, color.Black)
	border := size / 12
	mid := size / 2
	end := size - border
	draw.Draw(img, image.Rect(border, border, mid, mid), image.NewUniform(color.RGBA{255, 0, 0, 255}), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(mid, border, end, mid), image.NewUniform(color.RGBA{0, 255, 0, 255}), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(border, mid, mid, end), image.NewUniform(color.RGBA{0, 0, 255, 255}), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(mid, mid, end, end), image.NewUniform(color.RGBA{255, 255, 255, 255}), image.Point{}, draw.Src)
	return img
}

// scaleNearest 最近邻缩放到 n x n
func scaleNearest(src *image.RGBA, n int) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, n, n))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			dst.Set(x, y, src.At(b.Min.X+x*b.Dx()/n, b.Min.Y+y*b.Dy()/n))
		}
	}
	return dst
}

// labelImage 黑底白字的文字标签
func labelImage(t *testing.T, text string, w, h int) *image.RGBA {
	t.Helper()

	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		t.Fatalf("解析字体失败: %v", err)
	}

	img := solidImage(w, h, color.Black)
	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(24)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(image.White)
	c.SetHinting(font.HintingFull)

	pt := freetype.Pt(6, 4+int(c.PointToFixed(24)>>6))
	if _, err := c.DrawString(text, pt); err != nil {
		t.Fatalf("绘制文字失败: %v", err)
	}
	return img
}

// paste 将 src 贴到 dst 的 (x, y)
func paste(dst *image.RGBA, src image.Image, x, y int) {
	b := src.Bounds()
	draw.Draw(dst, image.Rect(x, y, x+b.Dx(), y+b.Dy()), src, b.Min, draw.Src)
}

// toMat 转换为 BGR Mat
func toMat(t testing.TB, img image.Image) gocv.Mat {
	t.Helper()
	mat, err := ImageToMat(img)
	if err != nil {
		t.Fatalf("图像转换失败: %v", err)
	}
	return mat
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
