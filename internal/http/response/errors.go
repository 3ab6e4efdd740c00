package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/platform/apierr"
)

var domainStatus = []struct {
	err    error
	status int
	code   string
}{
	{types.ErrNotFound, http.StatusNotFound, "not_found"},
	{types.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{types.ErrHasDependents, http.StatusConflict, "has_dependents"},
	{types.ErrMissingDependency, http.StatusFailedDependency, "missing_dependency"},
	{types.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{types.ErrNotPermitted, http.StatusForbidden, "not_permitted"},
	{types.ErrNotTrained, http.StatusConflict, "not_trained"},
	{types.ErrDisabled, http.StatusConflict, "disabled"},
	{types.ErrWorkUnit, http.StatusUnprocessableEntity, "work_unit_failure"},
	{types.ErrRemote, http.StatusBadGateway, "remote_failure"},
	{types.ErrIO, http.StatusInternalServerError, "io_failure"},
}

// FromError maps err onto an API error. An *apierr.Error anywhere in the
// chain wins; otherwise the first matching domain sentinel decides.
func FromError(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	for _, m := range domainStatus {
		if errors.Is(err, m.err) {
			return apierr.New(m.status, m.code, err)
		}
	}
	return apierr.New(http.StatusInternalServerError, "internal", err)
}

func RespondErr(c *gin.Context, err error) {
	ae := FromError(err)
	RespondError(c, ae.Status, ae.Code, ae.Err)
}
