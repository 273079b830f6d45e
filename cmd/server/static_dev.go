//go:build !embed
// +build !embed

package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// setupStaticFiles serves the chat UI from the working tree (no embedding)
func setupStaticFiles(router *gin.Engine, log *zap.Logger) {
	log.Info("🔧 Serving chat UI from the local filesystem", zap.String("dir", "./cmd/server/web/dist"))

	router.StaticFile("/", "./cmd/server/web/dist/index.html")
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "API endpoint not found"})
			return
		}
		c.File("./cmd/server/web/dist/index.html")
	})
}
