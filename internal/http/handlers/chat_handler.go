// Chat turn endpoint.
//
//   - POST /projects/{id}/chat
//
// A turn either asks one clarifying question or generates files. Retries
// carrying the same Idempotency-Key are answered by middleware.Idempotent
// from the recorded payload and never reach this handler.
package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// ChatRequest is the payload of a chat turn.
type ChatRequest struct {
	Message string `json:"message" binding:"required" example:"Build a portfolio site with a projects page"`
}

// GeneratedFile is a file created by a turn.
type GeneratedFile struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// ChatResponse is returned when the turn generated code.
type ChatResponse struct {
	Message  string          `json:"message" example:"Chat response generated"`
	Response string          `json:"response"`
	Files    []GeneratedFile `json:"files"`
}

// ClarificationResponse is returned when the turn needs more detail.
type ClarificationResponse struct {
	Message  string `json:"message" example:"clarification_requested"`
	Question string `json:"question"`
	Field    string `json:"field" example:"pages"`
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes line endings and blank runs, then trims.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Chat godoc
// @ID          chat
// @Summary     Run a chat turn
// @Description Sends a message. The response is either a clarification question or the assistant explanation plus the newly created files. Files updated in place are not listed.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Security    WalletKey
// @Param       id               path    string              true   "Project ID"
// @Param       Idempotency-Key  header  string              false  "Replay-safe retry key"
// @Param       body             body    handlers.ChatRequest  true  "Message"
// @Success     200  {object}  handlers.ChatResponse  "Generated; a clarification turn returns handlers.ClarificationResponse instead"
// @Header      200  {string}  Idempotency-Replayed  "true when served from a recorded response"
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or overlong message"
// @Failure     404  {object}  handlers.ErrorResponse  "Project not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Same Idempotency-Key still in progress"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     502  {object}  handlers.ErrorResponse  "Generation failed"
// @Router      /projects/{id}/chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeEmptyMessage, "message required")
		return
	}

	res, err := h.chat.Turn(c.Request.Context(), uid(c), c.Param("id"), sanitizeContent(req.Message))
	if err != nil {
		failErr(c, err, ErrCodeGenerationFailed)
		return
	}

	if res.Clarify {
		ok(c, http.StatusOK, ClarificationResponse{
			Message:  "clarification_requested",
			Question: res.Question,
			Field:    res.Field,
		})
		return
	}

	files := make([]GeneratedFile, 0, len(res.NewFiles))
	for _, f := range res.NewFiles {
		files = append(files, GeneratedFile{ID: f.ID, Path: f.Path, Content: f.Content, Type: f.Kind})
	}
	ok(c, http.StatusOK, ChatResponse{
		Message:  "Chat response generated",
		Response: res.Response,
		Files:    files,
	})
}
