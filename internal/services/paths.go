package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/classr/internal/domain"
)

// Paths are the on-disk roots the services write under.
type Paths struct {
	ResourcesRoot string
	WorkRoot      string
	TempDir       string
}

func (p Paths) Ensure() error {
	for _, dir := range []string{p.ResourcesRoot, p.WorkRoot, p.TempDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %v", types.ErrIO, dir, err)
		}
	}
	return nil
}

// Sanitize keeps letters, digits and '-_.()@ and replaces anything else with '-'.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune(`'-_.()@`, r):
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// ResourceDirName is the directory (and archive top-level entry) of a resource.
func ResourceDirName(resourceType, uid string) string {
	return Sanitize(resourceType) + "-" + Sanitize(uid)
}

// NewUID returns a version-1 UUID string.
func NewUID() (string, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func resolveRoot(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
