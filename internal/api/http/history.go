package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/bashautom/internal/history"
	"github.com/GriffinCanCode/bashautom/internal/registry"
)

// History streams a session's command history as JSON lines.
//
// Query parameters: limit (newest N entries), compress (gzip or zstd).
// History outlives a closed session until it is deleted.
func (h *Handlers) History(c *gin.Context) {
	name := c.Param("name")
	limit, err := queryLimit(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	entries := h.history.Get(name, limit)
	if entries == nil && !h.registry.Contains(name) {
		h.respondError(c, fmt.Errorf("%w: %s", registry.ErrSessionNotFound, name))
		return
	}
	h.export(c, name, entries)
}

// AllHistory streams the history of every session.
func (h *Handlers) AllHistory(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	entries := h.history.All()
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	h.export(c, "all", entries)
}

func (h *Handlers) export(c *gin.Context, name string, entries []history.Entry) {
	comp, err := history.ParseCompression(c.Query("compress"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Type", comp.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-history%s"`, name, comp.Extension()))
	c.Header("X-History-Entries", strconv.Itoa(len(entries)))
	c.Status(http.StatusOK)

	if err := history.Export(c.Writer, entries, comp); err != nil {
		// Headers are gone; the client sees a truncated body
		h.logger.Warn("History export failed", zap.String("session", name), zap.Error(err))
	}
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}
