// Package reportapi exposes persisted grade reports over HTTP.
package reportapi

import (
	"github.com/gin-gonic/gin"

	"hdlgrade/internal/grader/reportstore"
	appErr "hdlgrade/pkg/errors"
	"hdlgrade/pkg/utils/response"
)

// Controller serves read-only grade report queries.
type Controller struct {
	store reportstore.Store
}

// NewController creates a report controller over the store.
func NewController(store reportstore.Store) *Controller {
	return &Controller{store: store}
}

// ListReports returns the latest report per student for one assignment.
// GET /api/v1/reports/:assignmentID
func (ctl *Controller) ListReports(c *gin.Context) {
	assignmentID := c.Param("assignmentID")
	if assignmentID == "" {
		response.BadRequest(c, "assignmentID is required")
		return
	}
	reports, err := ctl.store.ListByAssignment(c.Request.Context(), assignmentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"assignment_id": assignmentID,
		"reports":       reports,
	})
}

// GetReport returns the latest report for one submission.
// GET /api/v1/reports/:assignmentID/:studentID
func (ctl *Controller) GetReport(c *gin.Context) {
	assignmentID := c.Param("assignmentID")
	studentID := c.Param("studentID")
	if assignmentID == "" || studentID == "" {
		response.BadRequest(c, "assignmentID and studentID are required")
		return
	}
	report, err := ctl.store.Get(c.Request.Context(), assignmentID, studentID)
	if err != nil {
		if appErr.Is(err, appErr.RecordNotFound) {
			response.NotFound(c, "")
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}
