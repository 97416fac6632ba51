// File endpoints, scoped to one project.
//
//   - GET    /projects/{id}/files
//   - POST   /projects/{id}/files
//   - PUT    /projects/{id}/files/{file_id}
//   - DELETE /projects/{id}/files/{file_id}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/stelgent-backend/internal/domain"
)

// CreateFileRequest is the payload for adding a file or folder.
type CreateFileRequest struct {
	Path    string `json:"path" binding:"required" example:"css/style.css"`
	Content string `json:"content" example:"body { margin: 0; }"`
	// Type is "file" (default) or "folder".
	Type string `json:"type" example:"file"`
}

// UpdateFileRequest changes content and/or path. Omitted fields stay as they are.
type UpdateFileRequest struct {
	Content *string `json:"content"`
	Path    *string `json:"path"`
}

// ListFilesResponse wraps a project's files.
type ListFilesResponse struct {
	Files []domain.ProjectFile `json:"files"`
}

// FileResponse wraps one created file.
type FileResponse struct {
	Message string              `json:"message" example:"File created successfully"`
	File    *domain.ProjectFile `json:"file"`
}

// ListFiles godoc
// @ID          listFiles
// @Summary     List project files
// @Tags        Files
// @Produce     json
// @Security    WalletKey
// @Param       id             path    string  true   "Project ID"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListFilesResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Project not found"
// @Router      /projects/{id}/files [get]
func (h *Handlers) ListFiles(c *gin.Context) {
	ctx, projectID := c.Request.Context(), c.Param("id")
	files, err := h.files.List(ctx, uid(c), projectID)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	if count, maxTS, err := h.files.Stats(ctx, projectID); err == nil {
		if etagMatches(c, "files", projectID, count, maxTS, 0, 0) {
			return
		}
	}
	if files == nil {
		files = []domain.ProjectFile{}
	}
	ok(c, http.StatusOK, ListFilesResponse{Files: files})
}

// CreateFile godoc
// @ID          createFile
// @Summary     Create a file or folder
// @Description Adding a file re-links the project's HTML pages to their siblings.
// @Tags        Files
// @Accept      json
// @Produce     json
// @Security    WalletKey
// @Param       id    path      string                      true  "Project ID"
// @Param       body  body      handlers.CreateFileRequest  true  "File"
// @Success     201   {object}  handlers.FileResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid path or type"
// @Failure     404   {object}  handlers.ErrorResponse  "Project not found"
// @Failure     409   {object}  handlers.ErrorResponse  "Path already exists"
// @Router      /projects/{id}/files [post]
func (h *Handlers) CreateFile(c *gin.Context) {
	var req CreateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "path required")
		return
	}
	// relink failures are logged by the service and never fail the create
	f, _, err := h.files.Create(c.Request.Context(), uid(c), c.Param("id"), req.Path, req.Content, req.Type)
	if err != nil {
		failErr(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, FileResponse{Message: "File created successfully", File: f})
}

// UpdateFile godoc
// @ID          updateFile
// @Summary     Update a file
// @Tags        Files
// @Accept      json
// @Produce     json
// @Security    WalletKey
// @Param       id       path      string                      true  "Project ID"
// @Param       file_id  path      string                      true  "File ID"
// @Param       body     body      handlers.UpdateFileRequest  true  "Changes"
// @Success     200      {object}  handlers.MessageResponse
// @Failure     400      {object}  handlers.ErrorResponse  "Invalid path"
// @Failure     404      {object}  handlers.ErrorResponse  "Project or file not found"
// @Failure     409      {object}  handlers.ErrorResponse  "Path already exists"
// @Router      /projects/{id}/files/{file_id} [put]
func (h *Handlers) UpdateFile(c *gin.Context) {
	var req UpdateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Content == nil && req.Path == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content or path required")
		return
	}
	if err := h.files.Update(c.Request.Context(), uid(c), c.Param("id"), c.Param("file_id"), req.Path, req.Content); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	okMessage(c, "File updated successfully")
}

// DeleteFile godoc
// @ID          deleteFile
// @Summary     Delete a file
// @Tags        Files
// @Produce     json
// @Security    WalletKey
// @Param       id       path      string  true  "Project ID"
// @Param       file_id  path      string  true  "File ID"
// @Success     200      {object}  handlers.MessageResponse
// @Failure     404      {object}  handlers.ErrorResponse  "Project or file not found"
// @Router      /projects/{id}/files/{file_id} [delete]
func (h *Handlers) DeleteFile(c *gin.Context) {
	if err := h.files.Delete(c.Request.Context(), uid(c), c.Param("id"), c.Param("file_id")); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	okMessage(c, "File deleted successfully")
}
