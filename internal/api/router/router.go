package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/medview/image-enhancer/internal/api/handlers/image"
	"github.com/medview/image-enhancer/internal/middleware"
)

func Setup(h *image.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api/images")

	api.POST("/upload", h.Upload)           // upload a new image
	api.GET("/history", h.History)          // enhancement history
	api.GET("/original/:id", h.GetOriginal) // serve original bytes
	api.GET("/enhanced/:id", h.GetEnhanced) // serve enhanced PNG
	api.POST("/:id/enhance", h.Enhance)     // run the enhancement
	api.GET("/:id/download", h.Download)    // download enhanced PNG

	return r
}
