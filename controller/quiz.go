package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"study-assistant-backend/request"
	"study-assistant-backend/response"
	"study-assistant-backend/service/quiz"

	"github.com/gin-gonic/gin"
)

// GenerateQuiz builds multiple-choice questions from an indexed document.
func (ct *Controller) GenerateQuiz(c *gin.Context) {
	var req request.QuizGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	questions, err := ct.quiz.Generate(c.Request.Context(), quiz.Request{
		DocumentID:   req.DocumentID,
		NumQuestions: req.NumQuestions,
		Difficulty:   req.Difficulty,
		Language:     req.Language,
		Mode:         req.Mode,
	})
	if err != nil {
		if errors.Is(err, quiz.ErrNoContent) {
			c.AbortWithStatusJSON(http.StatusNotFound, response.Response{
				Msg: ErrQuizNoContent.Error(),
			})
			return
		}
		slog.Error(ErrGenerateQuiz.Error(), "document_id", req.DocumentID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGenerateQuiz.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{Data: questions})
}
