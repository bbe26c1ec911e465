package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetCwd queries the shell's working directory. ?cached=true returns the
// last known value without running anything.
func (h *Handlers) GetCwd(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if c.Query("cached") == "true" {
		c.JSON(http.StatusOK, gin.H{"session": s.Name(), "cwd": s.Cwd()})
		return
	}

	cwd, err := s.GetCwd(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s.Name(), "cwd": cwd})
}

// Chdir changes the shell's working directory.
func (h *Handlers) Chdir(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req struct {
		Dir string `json:"dir" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	cwd, err := s.Chdir(c.Request.Context(), req.Dir)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s.Name(), "cwd": cwd})
}

// GetEnv reads one shell variable. Unset variables are 404.
func (h *Handlers) GetEnv(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	name := c.Param("var")

	value, set, err := s.GetEnv(c.Request.Context(), name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !set {
		c.JSON(http.StatusNotFound, gin.H{"name": name, "set": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "value": value, "set": true})
}

// SetEnv exports one shell variable.
func (h *Handlers) SetEnv(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	name := c.Param("var")

	var req struct {
		Value *string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	if err := s.SetEnv(c.Request.Context(), name, *req.Value); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "value": *req.Value, "set": true})
}

// UnsetEnv removes one shell variable.
func (h *Handlers) UnsetEnv(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	name := c.Param("var")

	if err := s.UnsetEnv(c.Request.Context(), name); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "set": false})
}
