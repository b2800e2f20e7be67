package handlers

import (
	"port42/internal/middleware"
	"port42/internal/models"
	"port42/internal/response"
	"port42/internal/services"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	votes *services.VoteService
}

func NewVoteHandler(votes *services.VoteService) *VoteHandler {
	return &VoteHandler{votes: votes}
}

type voteRequest struct {
	EntityType models.EntityType `json:"entityType"`
	EntityID   uint              `json:"entityId"`
	Choice     models.VoteChoice `json:"choice"`
	// 路由别名里使用 vote 字段
	Vote models.VoteChoice `json:"vote"`
}

func (r voteRequest) choice() models.VoteChoice {
	if r.Choice != "" {
		return r.Choice
	}
	return r.Vote
}

// Vote 通用投票入口 {entityType, entityId, choice}
func (h *VoteHandler) Vote(c *gin.Context) {
	var req voteRequest
	if !bindJSON(c, &req) {
		return
	}
	h.apply(c, req.EntityType, req.EntityID, req.choice())
}

// VoteResource POST /api/resources/:id/vote {vote}
func (h *VoteHandler) VoteResource(c *gin.Context) {
	h.voteEntity(c, models.EntityResource)
}

// VoteComment POST /api/comments/:id/vote {vote}
func (h *VoteHandler) VoteComment(c *gin.Context) {
	h.voteEntity(c, models.EntityComment)
}

func (h *VoteHandler) voteEntity(c *gin.Context, entityType models.EntityType) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req voteRequest
	if !bindJSON(c, &req) {
		return
	}
	h.apply(c, entityType, id, req.choice())
}

func (h *VoteHandler) apply(c *gin.Context, entityType models.EntityType, entityID uint, choice models.VoteChoice) {
	result, err := h.votes.ApplyVote(c.Request.Context(), entityType, entityID, middleware.CurrentUserID(c), choice)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result, "vote recorded")
}
