package cv

import (
	"errors"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"
)

// ErrEmptyTemplate 模板宽高为 0
var ErrEmptyTemplate = errors.New("模板图像为空")

// TemplateLoadError 模板加载失败，调用方无法继续
type TemplateLoadError struct {
	Path string
	Err  error
}

func (e *TemplateLoadError) Error() string {
	return fmt.Sprintf("加载模板失败: %s: %v", e.Path, e.Err)
}

func (e *TemplateLoadError) Unwrap() error {
	return e.Err
}

// Template 待查找的参考图像，加载后只读
// Mat 固定为 3 通道 BGR
type Template struct {
	Path string
	Mat  gocv.Mat
}

// Width 模板宽度
func (t *Template) Width() int { return t.Mat.Cols() }

// Height 模板高度
func (t *Template) Height() int { return t.Mat.Rows() }

// Close 释放模板图像
func (t *Template) Close() error {
	return t.Mat.Close()
}

// LoadTemplate 从文件加载模板，alpha 通道在读取时被丢弃
func LoadTemplate(path string) (*Template, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &TemplateLoadError{Path: path, Err: err}
	}

	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, &TemplateLoadError{Path: path, Err: errors.New("无法解码图像")}
	}
	return &Template{Path: path, Mat: mat}, nil
}

// TemplateFromImage 从内存图像创建模板
func TemplateFromImage(img image.Image, name string) (*Template, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, &TemplateLoadError{Path: name, Err: ErrEmptyTemplate}
	}
	mat, err := ImageToMat(img)
	if err != nil {
		return nil, &TemplateLoadError{Path: name, Err: err}
	}
	return &Template{Path: name, Mat: mat}, nil
}

// TemplateFromMat 复制一个 Mat 作为模板，灰度和带 alpha 的图像会被转换为 BGR
func TemplateFromMat(src gocv.Mat, name string) (*Template, error) {
	if src.Empty() || src.Rows() == 0 || src.Cols() == 0 {
		return nil, &TemplateLoadError{Path: name, Err: ErrEmptyTemplate}
	}
	mat, err := ToBGR(src)
	if err != nil {
		return nil, &TemplateLoadError{Path: name, Err: err}
	}
	return &Template{Path: name, Mat: mat}, nil
}
