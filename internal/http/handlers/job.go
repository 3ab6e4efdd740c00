package handlers

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/classr/internal/http/response"
	"github.com/yungbote/classr/internal/platform/apierr"
	"github.com/yungbote/classr/internal/platform/logger"
	"github.com/yungbote/classr/internal/services"
)

type JobHandler struct {
	log         *logger.Logger
	jobs        *services.JobService
	classifiers *services.ClassifierService
	tempDir     string
}

type JobHandlerDeps struct {
	Log         *logger.Logger
	Jobs        *services.JobService
	Classifiers *services.ClassifierService
	TempDir     string
}

func NewJobHandler(deps JobHandlerDeps) *JobHandler {
	return &JobHandler{
		log:         deps.Log.With("handler", "JobHandler"),
		jobs:        deps.Jobs,
		classifiers: deps.Classifiers,
		tempDir:     deps.TempDir,
	}
}

// POST /api/job.place
func (h *JobHandler) Place(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondErr(c, apierr.BadRequest("missing_file", err))
		return
	}
	classifierUID := strings.TrimSpace(c.PostForm("classifierUid"))
	if classifierUID == "" {
		response.RespondErr(c, apierr.BadRequest("missing_classifier_uid", errMissingField("classifierUid")))
		return
	}
	export := false
	if v := strings.TrimSpace(c.PostForm("export")); v != "" {
		export, err = strconv.ParseBool(v)
		if err != nil {
			response.RespondErr(c, apierr.BadRequest("invalid_export", err))
			return
		}
	}

	tmp, err := saveUpload(c, fh, h.tempDir)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	defer os.RemoveAll(filepath.Dir(tmp))

	uid, err := h.classifiers.Classify(c.Request.Context(), classifierUID, services.ClassifyRequest{
		InputPath:   tmp,
		DescCol:     strings.TrimSpace(c.PostForm("inDescCol")),
		ResCol:      strings.TrimSpace(c.PostForm("inResCol")),
		OutClassCol: strings.TrimSpace(c.PostForm("outClassCol")),
		Export:      export,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"uid": uid})
}

// GET /api/job.download/:uid
func (h *JobHandler) Download(c *gin.Context) {
	uid := c.Param("uid")
	path, err := h.jobs.OutputPath(c.Request.Context(), uid)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	c.FileAttachment(path, services.Sanitize(uid)+".csv")
}
