package controller

import (
	"log/slog"
	"net/http"

	"study-assistant-backend/dao"
	"study-assistant-backend/response"

	"github.com/gin-gonic/gin"
)

// GetDocument returns one document record.
func (ct *Controller) GetDocument(c *gin.Context) {
	if dao.DB == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.Response{
			Msg: ErrDocumentStoreOff.Error(),
		})
		return
	}

	doc, err := dao.GetDocumentByID(c.Param("id"))
	if err != nil {
		slog.Error(ErrGetDocument.Error(), "document_id", c.Param("id"), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetDocument.Error(),
		})
		return
	}
	if doc == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, response.Response{
			Msg: ErrDocumentNotFound.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.DocumentResponse{Document: *doc},
	})
}

// ListDocuments returns the documents of a subject, newest first.
func (ct *Controller) ListDocuments(c *gin.Context) {
	if dao.DB == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.Response{
			Msg: ErrDocumentStoreOff.Error(),
		})
		return
	}

	subjectID := c.Query("subject_id")
	if subjectID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	docs, err := dao.GetDocumentsBySubject(subjectID)
	if err != nil {
		slog.Error(ErrListDocuments.Error(), "subject_id", subjectID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrListDocuments.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.DocumentListResponse{Documents: docs},
	})
}
