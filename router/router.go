package router

import (
	"study-assistant-backend/controller"
	"study-assistant-backend/middleware"

	"github.com/gin-gonic/gin"
)

func Register(ctrl *controller.Controller) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")
	{
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.POST("/rag/query", ctrl.Query)
			protected.POST("/rag/retrieve", ctrl.Retrieve)
			protected.POST("/rag/analyze", ctrl.AnalyzeFile)
			protected.GET("/rag/diag", ctrl.Diag)

			protected.GET("/documents", ctrl.ListDocuments)
			protected.GET("/documents/:id", ctrl.GetDocument)
			protected.POST("/documents/:id/index", ctrl.IndexDocument)
			protected.POST("/documents/:id/index-url", ctrl.IndexDocumentFromURL)
			protected.DELETE("/documents/:id/index", ctrl.DeleteDocumentIndex)
			protected.GET("/documents/:id/job", ctrl.GetJob)

			protected.POST("/quiz/generate", ctrl.GenerateQuiz)
		}
	}

	return r
}
