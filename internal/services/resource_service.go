package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yungbote/classr/internal/archive"
	"github.com/yungbote/classr/internal/data/repos"
	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/platform/dbctx"
	"github.com/yungbote/classr/internal/platform/logger"
)

type AddResourceRequest struct {
	// UID is generated when empty.
	UID   string
	Type  string
	Title string
	// CreatedOn keeps the origin timestamp of replicated resources.
	CreatedOn *time.Time
}

type ResourceService struct {
	log   *logger.Logger
	repo  repos.ResourceRepo
	paths Paths
	now   func() time.Time
}

func NewResourceService(baseLog *logger.Logger, repo repos.ResourceRepo, paths Paths) *ResourceService {
	paths.ResourcesRoot = resolveRoot(paths.ResourcesRoot)
	return &ResourceService{
		log:   baseLog.With("service", "ResourceService"),
		repo:  repo,
		paths: paths,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *ResourceService) prepare(ctx context.Context, req *AddResourceRequest) (*types.Resource, error) {
	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" {
		return nil, fmt.Errorf("%w: resource type required", types.ErrInvalidArgument)
	}
	if strings.TrimSpace(req.UID) == "" {
		uid, err := NewUID()
		if err != nil {
			return nil, err
		}
		req.UID = uid
	}
	exists, err := s.repo.Exists(dbctx.Of(ctx), req.UID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("resource %s: %w", req.UID, types.ErrAlreadyExists)
	}
	now := s.now()
	created := now
	if req.CreatedOn != nil {
		created = req.CreatedOn.UTC()
	}
	return &types.Resource{
		UID:            req.UID,
		ResourceType:   req.Type,
		Title:          req.Title,
		CreatedOn:      created,
		LocalCreatedOn: now,
		Path:           filepath.Join(s.paths.ResourcesRoot, ResourceDirName(req.Type, req.UID)),
	}, nil
}

// AddFromTarGz extracts a resource archive and registers it. An archive whose
// top-level directory already carries the resource dir name is unpacked as is;
// any other layout is nested inside a fresh resource dir.
func (s *ResourceService) AddFromTarGz(ctx context.Context, req AddResourceRequest, tarGzPath string) (*types.Resource, error) {
	res, err := s.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}
	dirName := filepath.Base(res.Path)

	top, err := archive.TopLevelDir(tarGzPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	if err := os.MkdirAll(s.paths.ResourcesRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	staging, err := os.MkdirTemp(s.paths.ResourcesRoot, ".incoming-")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	defer os.RemoveAll(staging)

	if err := archive.Extract(tarGzPath, staging); err != nil {
		return nil, fmt.Errorf("%w: extract %s: %v", types.ErrIO, filepath.Base(tarGzPath), err)
	}
	src := staging
	if top == dirName && dirExists(filepath.Join(staging, top)) {
		src = filepath.Join(staging, top)
	}
	if err := s.claimDir(res.Path); err != nil {
		return nil, err
	}
	if err := os.Rename(src, res.Path); err != nil {
		return nil, fmt.Errorf("%w: move into place: %v", types.ErrIO, err)
	}

	if err := s.repo.Create(dbctx.Of(ctx), res); err != nil {
		_ = os.RemoveAll(res.Path)
		return nil, err
	}
	s.log.Info("resource added", "resource_uid", res.UID, "type", res.ResourceType, "source", "targz")
	return res, nil
}

// AddFromFile wraps a single file into a new resource dir.
func (s *ResourceService) AddFromFile(ctx context.Context, req AddResourceRequest, filePath string) (*types.Resource, error) {
	res, err := s.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}
	if err := s.claimDir(res.Path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(res.Path, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	if err := copyFile(filePath, filepath.Join(res.Path, filepath.Base(filePath))); err != nil {
		_ = os.RemoveAll(res.Path)
		return nil, fmt.Errorf("%w: copy %s: %v", types.ErrIO, filepath.Base(filePath), err)
	}
	if err := s.repo.Create(dbctx.Of(ctx), res); err != nil {
		_ = os.RemoveAll(res.Path)
		return nil, err
	}
	s.log.Info("resource added", "resource_uid", res.UID, "type", res.ResourceType, "source", "file")
	return res, nil
}

// claimDir clears a leftover directory that has no row behind it.
func (s *ResourceService) claimDir(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	s.log.Warn("removing orphaned resource directory", "path", path)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: clear %s: %v", types.ErrIO, path, err)
	}
	return nil
}

func (s *ResourceService) Get(ctx context.Context, uid string) (*types.Resource, error) {
	return s.repo.GetByUID(dbctx.Of(ctx), uid)
}

func (s *ResourceService) GetAll(ctx context.Context) ([]*types.Resource, error) {
	return s.repo.GetAll(dbctx.Of(ctx))
}

func (s *ResourceService) Exists(ctx context.Context, uid string) (bool, error) {
	return s.repo.Exists(dbctx.Of(ctx), uid)
}

// Remove deletes the row, then the directory. A failed directory removal is
// only logged.
func (s *ResourceService) Remove(ctx context.Context, uid string) error {
	res, err := s.repo.GetByUID(dbctx.Of(ctx), uid)
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("resource %s: %w", uid, types.ErrNotFound)
	}
	if err := s.repo.Delete(dbctx.Of(ctx), uid); err != nil {
		return err
	}
	if err := os.RemoveAll(res.Path); err != nil {
		s.log.Warn("remove resource directory failed", "resource_uid", uid, "path", res.Path, "error", err)
	}
	s.log.Info("resource removed", "resource_uid", uid)
	return nil
}

// Package writes a fresh <temp>/<uid>-*.tar.gz rooted at the resource dir
// name and returns its path. Each call gets its own file; the caller removes it.
func (s *ResourceService) Package(ctx context.Context, uid string) (string, error) {
	res, err := s.repo.GetByUID(dbctx.Of(ctx), uid)
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", fmt.Errorf("resource %s: %w", uid, types.ErrNotFound)
	}
	tmp := s.paths.TempDir
	if tmp == "" {
		tmp = os.TempDir()
	}
	f, err := os.CreateTemp(tmp, Sanitize(uid)+"-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("%w: package %s: %v", types.ErrIO, uid, err)
	}
	out := f.Name()
	_ = f.Close()
	if err := archive.Pack(res.Path, out, filepath.Base(res.Path)); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("%w: package %s: %v", types.ErrIO, uid, err)
	}
	return out, nil
}
