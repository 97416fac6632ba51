// Conversation history endpoint.
//
//   - GET /projects/{id}/conversations   (oldest first, paginated, ETag support)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/stelgent-backend/internal/domain"
)

// ListConversationsResponse wraps a page of history.
type ListConversationsResponse struct {
	Conversations []domain.ConversationMessage `json:"conversations"`
	Pagination    Pagination                   `json:"pagination"`
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List a project's conversation
// @Description Oldest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
// @Security    WalletKey
// @Param       id             path    string  true  "Project ID"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(50)
// @Success     200  {object}  handlers.ListConversationsResponse
// @Success     304  {string}  string "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Project not found"
// @Router      /projects/{id}/conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	user, projectID := uid(c), c.Param("id")
	page, size := clampPagination(c, 50)

	items, total, err := h.convs.ListPage(ctx, user, projectID, page, size)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	// ownership is checked by ListPage, so the tag is computed afterwards
	if count, maxTS, err := h.convs.Stats(ctx, projectID); err == nil {
		if etagMatches(c, "conversations", projectID, count, maxTS, page, size) {
			return
		}
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items, Pagination: newPagination(page, size, total)})
}
