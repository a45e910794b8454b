package handlers

import (
	"net/http"
	"strconv"

	"github.com/dudin-george/cu-x5-bootcamp/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler serves question bank management for recruiters.
type AdminHandler struct {
	bank *services.QuestionBankService
}

func NewAdminHandler(bank *services.QuestionBankService) *AdminHandler {
	return &AdminHandler{bank: bank}
}

func parseUintParam(c *gin.Context, name, label string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid "+label+" ID")
		return 0, false
	}
	return uint(id), true
}

func (h *AdminHandler) CreateBlock(c *gin.Context) {
	var req services.CreateBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	block, err := h.bank.CreateBlock(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, block)
}

func (h *AdminHandler) ListBlocks(c *gin.Context) {
	var isActive *bool
	if raw := c.Query("is_active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondBadRequest(c, "Invalid is_active filter")
			return
		}
		isActive = &v
	}

	blocks, err := h.bank.ListBlocks(c.Request.Context(), isActive)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, blocks)
}

func (h *AdminHandler) ListBlockQuestions(c *gin.Context) {
	blockID, ok := parseUintParam(c, "id", "block")
	if !ok {
		return
	}

	questions, err := h.bank.ListBlockQuestions(c.Request.Context(), blockID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, questions)
}

func (h *AdminHandler) CreateQuestion(c *gin.Context) {
	var req services.CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	question, err := h.bank.CreateQuestion(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, question)
}

func (h *AdminHandler) GetQuestion(c *gin.Context) {
	questionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "Invalid question ID")
		return
	}

	question, err := h.bank.GetQuestion(c.Request.Context(), questionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"question":   question,
		"block_name": question.Block.Name,
	})
}

func (h *AdminHandler) CreateTrack(c *gin.Context) {
	var req services.CreateTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	track, err := h.bank.CreateTrack(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, track)
}

func (h *AdminHandler) ListTracks(c *gin.Context) {
	tracks, err := h.bank.ListTracks(c.Request.Context(), false)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tracks)
}

func (h *AdminHandler) LinkTrackBlock(c *gin.Context) {
	var req services.LinkTrackBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	link, err := h.bank.LinkTrackBlock(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

func (h *AdminHandler) GetTrackBlocks(c *gin.Context) {
	trackID, ok := parseUintParam(c, "id", "track")
	if !ok {
		return
	}

	if _, err := h.bank.GetTrack(c.Request.Context(), trackID); err != nil {
		respondError(c, err)
		return
	}

	links, err := h.bank.TrackBlocks(c.Request.Context(), trackID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, links)
}
