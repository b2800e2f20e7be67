package handlers

import (
	"port42/internal/middleware"
	"port42/internal/response"
	"port42/internal/services"

	"github.com/gin-gonic/gin"
)

type CommunityHandler struct {
	communities *services.CommunityService
}

func NewCommunityHandler(communities *services.CommunityService) *CommunityHandler {
	return &CommunityHandler{communities: communities}
}

type createCommunityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

// List 所有社区，成员多的在前
func (h *CommunityHandler) List(c *gin.Context) {
	communities, err := h.communities.List(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, communities, "")
}

func (h *CommunityHandler) Create(c *gin.Context) {
	var req createCommunityRequest
	if !bindJSON(c, &req) {
		return
	}
	community, err := h.communities.Create(c.Request.Context(), services.CreateCommunityInput{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
		CreatorID:   middleware.CurrentUserID(c),
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, community, "community created")
}

func (h *CommunityHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	community, err := h.communities.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	member, err := h.communities.IsMember(ctx, community.ID, middleware.CurrentUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"community": community, "isMember": member}, "")
}

// ToggleMembership 加入或退出社区
func (h *CommunityHandler) ToggleMembership(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	joined, count, err := h.communities.ToggleMembership(c.Request.Context(), id, middleware.CurrentUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	msg := "left community"
	if joined {
		msg = "joined community"
	}
	response.Success(c, gin.H{"joined": joined, "memberCount": count}, msg)
}
