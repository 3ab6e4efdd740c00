package handlers

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/classr/internal/domain"
)

// saveUpload stores fh under a fresh directory in tempDir, keeping the
// client's base file name. The caller removes the directory.
func saveUpload(c *gin.Context, fh *multipart.FileHeader, tempDir string) (string, error) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	dir, err := os.MkdirTemp(tempDir, "upload-")
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	name := filepath.Base(filepath.Clean("/" + fh.Filename))
	if name == "/" || name == "." {
		name = "upload"
	}
	dst := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("%w: save upload: %v", types.ErrIO, err)
	}
	return dst, nil
}

func errMissingField(name string) error {
	return fmt.Errorf("%w: %s required", types.ErrInvalidArgument, name)
}
