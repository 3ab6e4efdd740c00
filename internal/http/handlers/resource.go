package handlers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/http/response"
	"github.com/yungbote/classr/internal/platform/apierr"
	"github.com/yungbote/classr/internal/platform/logger"
	"github.com/yungbote/classr/internal/services"
)

type ResourceHandler struct {
	log           *logger.Logger
	resources     *services.ResourceService
	tempDir       string
	allowDownload bool
}

type ResourceHandlerDeps struct {
	Log       *logger.Logger
	Resources *services.ResourceService
	TempDir   string
	// AllowDownload gates GET /api/resource.download/:uid.
	AllowDownload bool
}

func NewResourceHandler(deps ResourceHandlerDeps) *ResourceHandler {
	return &ResourceHandler{
		log:           deps.Log.With("handler", "ResourceHandler"),
		resources:     deps.Resources,
		tempDir:       deps.TempDir,
		allowDownload: deps.AllowDownload,
	}
}

// GET /api/resource.download/:uid
func (h *ResourceHandler) Download(c *gin.Context) {
	if !h.allowDownload {
		response.RespondErr(c, apierr.Forbidden("download_disabled", fmt.Errorf("%w: resource download is disabled", types.ErrNotPermitted)))
		return
	}
	uid := c.Param("uid")
	path, err := h.resources.Package(c.Request.Context(), uid)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			h.log.Warn("remove packaged resource failed", "path", path, "error", err)
		}
	}()
	c.FileAttachment(path, services.Sanitize(uid)+".tar.gz")
}

// POST /api/resource.upload
func (h *ResourceHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondErr(c, apierr.BadRequest("missing_file", err))
		return
	}
	req := services.AddResourceRequest{
		UID:   strings.TrimSpace(c.PostForm("resourceUid")),
		Type:  strings.TrimSpace(c.PostForm("resourceType")),
		Title: strings.TrimSpace(c.PostForm("resourceTitle")),
	}

	tmp, err := saveUpload(c, fh, h.tempDir)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	defer os.RemoveAll(filepath.Dir(tmp))

	var res *types.Resource
	if strings.HasSuffix(strings.ToLower(fh.Filename), ".tar.gz") {
		res, err = h.resources.AddFromTarGz(c.Request.Context(), req, tmp)
	} else {
		res, err = h.resources.AddFromFile(c.Request.Context(), req, tmp)
	}
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"uid": res.UID, "resource": res})
}
