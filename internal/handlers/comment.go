package handlers

import (
	"port42/internal/middleware"
	"port42/internal/response"
	"port42/internal/services"

	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	comments *services.CommentService
}

func NewCommentHandler(comments *services.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

type createCommentRequest struct {
	ResourceID uint   `json:"resourceId"`
	Content    string `json:"content"`
	ParentID   *uint  `json:"parentId"`
}

type editCommentRequest struct {
	Content string `json:"content"`
}

func (h *CommentHandler) Create(c *gin.Context) {
	var req createCommentRequest
	if !bindJSON(c, &req) {
		return
	}
	// parentId 为 0 视为顶层评论
	if req.ParentID != nil && *req.ParentID == 0 {
		req.ParentID = nil
	}

	node, err := h.comments.CreateComment(c.Request.Context(), services.CreateCommentInput{
		ResourceID: req.ResourceID,
		AuthorID:   middleware.CurrentUserID(c),
		Content:    req.Content,
		ParentID:   req.ParentID,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, node, "comment created")
}

func (h *CommentHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req editCommentRequest
	if !bindJSON(c, &req) {
		return
	}
	node, err := h.comments.EditComment(c.Request.Context(), id, middleware.CurrentUserID(c), req.Content)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, node, "comment updated")
}

// Delete 软删除，回复保留
func (h *CommentHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.comments.SoftDelete(c.Request.Context(), id, middleware.CurrentUserID(c)); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, nil, "comment deleted")
}

func (h *CommentHandler) History(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	edits, err := h.comments.EditHistory(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, edits, "")
}
