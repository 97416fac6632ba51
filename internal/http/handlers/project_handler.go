// Project endpoints.
//
//   - POST   /projects        (create)
//   - GET    /projects        (list, newest first, paginated, ETag support)
//   - GET    /projects/{id}   (get)
//   - DELETE /projects/{id}   (delete with everything it owns)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/stelgent-backend/internal/domain"
)

// CreateProjectRequest is the payload for creating a project.
type CreateProjectRequest struct {
	// Name is 1–200 characters after whitespace normalization.
	Name        string `json:"name" binding:"required" example:"Coffee shop landing page"`
	Description string `json:"description" example:"Single page site with a menu and contact form"`
}

// ProjectResponse wraps one project.
type ProjectResponse struct {
	Message string          `json:"message,omitempty" example:"Project created successfully"`
	Project *domain.Project `json:"project"`
}

// ListProjectsResponse wraps a page of projects.
type ListProjectsResponse struct {
	Projects   []domain.Project `json:"projects"`
	Pagination Pagination       `json:"pagination"`
}

// CreateProject godoc
// @ID          createProject
// @Summary     Create a project
// @Tags        Projects
// @Accept      json
// @Produce     json
// @Security    WalletKey
// @Param       body  body      handlers.CreateProjectRequest  true  "Project"
// @Success     201   {object}  handlers.ProjectResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid name"
// @Failure     401   {object}  handlers.ErrorResponse  "Missing or invalid wallet key"
// @Router      /projects [post]
func (h *Handlers) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required (1–200 chars)")
		return
	}
	p, err := h.projects.Create(c.Request.Context(), uid(c), req.Name, req.Description)
	if err != nil {
		failErr(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, ProjectResponse{Message: "Project created successfully", Project: p})
}

// ListProjects godoc
// @ID          listProjects
// @Summary     List projects (paginated)
// @Description Newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Projects
// @Produce     json
// @Security    WalletKey
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListProjectsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Router      /projects [get]
func (h *Handlers) ListProjects(c *gin.Context) {
	ctx := c.Request.Context()
	user := uid(c)
	page, size := clampPagination(c, 20)

	if count, maxTS, err := h.projects.Stats(ctx, user); err == nil {
		if etagMatches(c, "projects", user, count, maxTS, page, size) {
			return
		}
	}

	items, total, err := h.projects.ListPage(ctx, user, page, size)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListProjectsResponse{Projects: items, Pagination: newPagination(page, size, total)})
}

// GetProject godoc
// @ID          getProject
// @Summary     Get a project
// @Tags        Projects
// @Produce     json
// @Security    WalletKey
// @Param       id   path      string  true  "Project ID"
// @Success     200  {object}  handlers.ProjectResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Project not found"
// @Router      /projects/{id} [get]
func (h *Handlers) GetProject(c *gin.Context) {
	p, err := h.projects.Get(c.Request.Context(), uid(c), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, ProjectResponse{Project: p})
}

// DeleteProject godoc
// @ID          deleteProject
// @Summary     Delete a project
// @Description Removes the project with its files, history, cached completions and mint record.
// @Tags        Projects
// @Produce     json
// @Security    WalletKey
// @Param       id   path      string  true  "Project ID"
// @Success     200  {object}  handlers.MessageResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Project not found"
// @Router      /projects/{id} [delete]
func (h *Handlers) DeleteProject(c *gin.Context) {
	if err := h.projects.Delete(c.Request.Context(), uid(c), c.Param("id")); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	okMessage(c, "Project deleted successfully")
}
