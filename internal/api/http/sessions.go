package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/bashautom/internal/infrastructure/config"
	"github.com/GriffinCanCode/bashautom/internal/shell"
)

// SessionInfo is the JSON view of a session.
type SessionInfo struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	Alive     bool      `json:"alive"`
	Busy      bool      `json:"busy"`
	Cwd       string    `json:"cwd"`
	Commands  uint64    `json:"commands"`
	StartedAt time.Time `json:"started_at"`
}

func describe(s *shell.Session) SessionInfo {
	return SessionInfo{
		Name:      s.Name(),
		PID:       s.PID(),
		Alive:     s.Alive(),
		Busy:      s.Busy(),
		Cwd:       s.Cwd(),
		Commands:  s.Commands(),
		StartedAt: s.StartedAt(),
	}
}

// CreateSessionRequest describes a session to spawn. Fields override the
// named profile, if any.
type CreateSessionRequest struct {
	Name      string            `json:"name"`
	Profile   string            `json:"profile"`
	Shell     string            `json:"shell"`
	Args      []string          `json:"args"`
	Dir       string            `json:"dir"`
	Env       map[string]string `json:"env"`
	CleanEnv  bool              `json:"clean_env"`
	Timeout   string            `json:"timeout"`
	RawOutput bool              `json:"raw_output"`
	Reuse     bool              `json:"reuse"`
}

// SessionOptions converts a profile into session options.
func SessionOptions(p config.Profile) []shell.Option {
	var opts []shell.Option
	if p.Shell != "" || len(p.Args) > 0 {
		opts = append(opts, shell.WithShell(p.Shell, p.Args...))
	}
	if p.Dir != "" {
		opts = append(opts, shell.WithDir(p.Dir))
	}
	if len(p.Env) > 0 {
		opts = append(opts, shell.WithEnv(p.Env))
	}
	if p.Timeout > 0 {
		opts = append(opts, shell.WithDefaultTimeout(time.Duration(p.Timeout)))
	}
	if p.RawOutput {
		opts = append(opts, shell.WithRawOutput())
	}
	return opts
}

func (r CreateSessionRequest) options(profiles *config.ProfileStore) ([]shell.Option, error) {
	var opts []shell.Option
	if r.Profile != "" {
		p, err := profiles.Get(r.Profile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, SessionOptions(p)...)
	}

	if r.Shell != "" || len(r.Args) > 0 {
		opts = append(opts, shell.WithShell(r.Shell, r.Args...))
	}
	if r.Dir != "" {
		opts = append(opts, shell.WithDir(r.Dir))
	}
	if r.CleanEnv {
		opts = append(opts, shell.WithoutInheritedEnv())
	}
	if len(r.Env) > 0 {
		opts = append(opts, shell.WithEnv(r.Env))
	}
	if r.Timeout != "" {
		d, err := shell.ParseTimeout(r.Timeout)
		if err != nil {
			return nil, err
		}
		opts = append(opts, shell.WithDefaultTimeout(d))
	}
	if r.RawOutput {
		opts = append(opts, shell.WithRawOutput())
	}
	return opts, nil
}

// CreateSession spawns a session.
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request: "+err.Error())
			return
		}
	}

	opts, err := req.options(h.profiles)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	if req.Reuse && req.Name != "" {
		s, created, err := h.registry.GetOrCreate(ctx, req.Name, opts...)
		if err != nil {
			h.respondError(c, err)
			return
		}
		code := http.StatusOK
		if created {
			code = http.StatusCreated
		}
		c.JSON(code, describe(s))
		return
	}

	s, err := h.registry.Create(ctx, req.Name, opts...)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, describe(s))
}

// ListSessions lists registered sessions. ?alive=true hides dead ones.
func (h *Handlers) ListSessions(c *gin.Context) {
	aliveOnly := c.Query("alive") == "true"

	sessions := make([]SessionInfo, 0, h.registry.Len())
	for _, s := range h.registry.List() {
		if aliveOnly && !s.Alive() {
			continue
		}
		sessions = append(sessions, describe(s))
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession describes one session.
func (h *Handlers) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, describe(s))
}

// DeleteSession closes a session and drops its history.
func (h *Handlers) DeleteSession(c *gin.Context) {
	name := c.Param("name")
	if err := h.registry.Close(name); err != nil {
		h.respondError(c, err)
		return
	}
	if c.Query("keep_history") != "true" {
		h.history.Forget(name)
	}
	c.JSON(http.StatusOK, gin.H{"closed": name})
}

// PruneSessions removes sessions whose shell has exited.
func (h *Handlers) PruneSessions(c *gin.Context) {
	pruned := h.registry.Prune()
	if pruned == nil {
		pruned = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"pruned": pruned})
}

// ListProfiles lists the configured session profiles.
func (h *Handlers) ListProfiles(c *gin.Context) {
	profiles := h.profiles.List()
	c.JSON(http.StatusOK, gin.H{
		"profiles": profiles,
		"source":   h.profiles.Path(),
	})
}
