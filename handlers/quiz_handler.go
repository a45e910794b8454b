package handlers

import (
	"net/http"
	"strconv"

	"github.com/dudin-george/cu-x5-bootcamp/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// QuizHandler serves the candidate-facing quiz endpoints.
type QuizHandler struct {
	engine *services.QuizEngine
	bank   *services.QuestionBankService
}

func NewQuizHandler(engine *services.QuizEngine, bank *services.QuestionBankService) *QuizHandler {
	return &QuizHandler{
		engine: engine,
		bank:   bank,
	}
}

func (h *QuizHandler) StartQuiz(c *gin.Context) {
	var req services.StartQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	resp, err := h.engine.Start(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *QuizHandler) SubmitAnswer(c *gin.Context) {
	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	outcome, err := h.engine.Answer(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

func (h *QuizHandler) GetResults(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "Invalid session ID")
		return
	}

	results, err := h.engine.Results(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *QuizHandler) GetAttempts(c *gin.Context) {
	candidateID, err := uuid.Parse(c.Query("candidate_id"))
	if err != nil {
		respondBadRequest(c, "Invalid candidate ID")
		return
	}

	var trackID *uint
	if raw := c.Query("track_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondBadRequest(c, "Invalid track ID")
			return
		}
		v := uint(id)
		trackID = &v
	}

	attempts, err := h.engine.Attempts(c.Request.Context(), candidateID, trackID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

func (h *QuizHandler) ListTracks(c *gin.Context) {
	tracks, err := h.bank.ListTracks(c.Request.Context(), true)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tracks": tracks})
}
