package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStore 抽象附件的二进制存储：Save 返回持久定位符，Remove 删除不存在的对象不算错误。
// 存储失败域独立于数据库写入，调用方自行决定如何补偿。
type BlobStore interface {
	Save(ctx context.Context, data []byte, contentType, fileName string) (string, error)
	Remove(ctx context.Context, locator string) error
}

// DiskStore 按内容类型把文件写到图片目录或视频目录，文件名用 uuid 防冲突。
type DiskStore struct {
	pictureDir string
	videoDir   string
}

func NewDiskStore(pictureDir, videoDir string) *DiskStore {
	return &DiskStore{pictureDir: pictureDir, videoDir: videoDir}
}

// objectName 保留原始扩展名，主体替换为 uuid。
func objectName(fileName string) string {
	return uuid.NewString() + filepath.Ext(fileName)
}

func (s *DiskStore) Save(ctx context.Context, data []byte, contentType, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := s.pictureDir
	if strings.HasPrefix(contentType, "video/") {
		dir = s.videoDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, objectName(fileName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *DiskStore) Remove(_ context.Context, locator string) error {
	err := os.Remove(locator)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
