package capture

import (
	"context"

	"github.com/zoeyai/framelocator/pkg/vision/cv"
)

// FileSource 从图像文件读取截图，每次 Capture 都重新读取
type FileSource struct {
	path string
}

// NewFileSource 创建文件截图来源
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path 文件路径
func (s *FileSource) Path() string {
	return s.path
}

// Capture 读取文件并按区域裁剪
func (s *FileSource) Capture(ctx context.Context, region *cv.Region) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure(SourceFile, ReasonBackendError, err)
	}

	mat, err := cv.ReadImage(s.path)
	if err != nil {
		mat.Close()
		return nil, failure(SourceFile, ReasonBackendError, err)
	}
	return frameFromMat(mat, region, SourceFile)
}
