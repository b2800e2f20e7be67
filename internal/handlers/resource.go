package handlers

import (
	"port42/internal/middleware"
	"port42/internal/response"
	"port42/internal/services"

	"github.com/gin-gonic/gin"
)

type ResourceHandler struct {
	resources *services.ResourceService
	comments  *services.CommentService
}

func NewResourceHandler(resources *services.ResourceService, comments *services.CommentService) *ResourceHandler {
	return &ResourceHandler{resources: resources, comments: comments}
}

type submitResourceRequest struct {
	CommunityID uint     `json:"communityId"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Difficulty  string   `json:"difficulty"`
	Tags        []string `json:"tags"`
}

type updateResourceRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Type        *string  `json:"type"`
	Difficulty  *string  `json:"difficulty"`
	Tags        []string `json:"tags"`
}

type reportRequest struct {
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

// List 资源列表，支持社区、标签、关键词过滤
func (h *ResourceHandler) List(c *gin.Context) {
	page, err := h.resources.List(c.Request.Context(), services.ResourceQuery{
		CommunitySlug: c.Query("community"),
		Sort:          c.DefaultQuery("sort", "newest"),
		Tag:           c.Query("tag"),
		Q:             c.Query("q"),
		Page:          queryInt(c, "page"),
		Limit:         queryInt(c, "limit"),
		ViewerID:      middleware.CurrentUserID(c),
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, page, "")
}

func (h *ResourceHandler) Create(c *gin.Context) {
	var req submitResourceRequest
	if !bindJSON(c, &req) {
		return
	}
	resource, err := h.resources.Submit(c.Request.Context(), services.SubmitResourceInput{
		UserID:      middleware.CurrentUserID(c),
		CommunityID: req.CommunityID,
		Title:       req.Title,
		URL:         req.URL,
		Description: req.Description,
		Type:        req.Type,
		Difficulty:  req.Difficulty,
		Tags:        req.Tags,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, resource, "resource submitted")
}

// Detail 读取详情，浏览数加一
func (h *ResourceHandler) Detail(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	view, err := h.resources.Get(c.Request.Context(), id, middleware.CurrentUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view, "")
}

func (h *ResourceHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req updateResourceRequest
	if !bindJSON(c, &req) {
		return
	}
	resource, err := h.resources.Update(c.Request.Context(), id, middleware.CurrentUserID(c), services.UpdateResourceInput{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Difficulty:  req.Difficulty,
		Tags:        req.Tags,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, resource, "resource updated")
}

func (h *ResourceHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.resources.Delete(c.Request.Context(), id, middleware.CurrentUserID(c)); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, nil, "resource deleted")
}

// Click 记录外链点击
func (h *ResourceHandler) Click(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.resources.Click(c.Request.Context(), id); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, nil, "")
}

func (h *ResourceHandler) Report(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req reportRequest
	if !bindJSON(c, &req) {
		return
	}
	err := h.resources.Report(c.Request.Context(), services.ReportInput{
		ResourceID:  id,
		UserID:      middleware.CurrentUserID(c),
		Reason:      req.Reason,
		Description: req.Description,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, nil, "report submitted")
}

// Comments 资源下的评论树，分页按顶层评论计算
func (h *ResourceHandler) Comments(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	page, err := h.comments.ListThread(c.Request.Context(), services.ThreadQuery{
		ResourceID: id,
		Sort:       c.Query("sort"),
		Page:       queryInt(c, "page"),
		Limit:      queryInt(c, "limit"),
		ViewerID:   middleware.CurrentUserID(c),
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, page, "")
}
