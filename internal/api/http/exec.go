package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/bashautom/internal/process"
	"github.com/GriffinCanCode/bashautom/internal/shell"
)

// ExecRequest is one command to run.
type ExecRequest struct {
	Command string `json:"command" binding:"required"`
	Timeout string `json:"timeout"`
}

// ExecResponse carries the result, plus the error when the shell died while
// the command ran.
type ExecResponse struct {
	Session string               `json:"session"`
	Result  *shell.CommandResult `json:"result"`
	Error   string               `json:"error,omitempty"`
}

// execOptions builds per-command options from a timeout string.
func execOptions(timeout string) ([]shell.ExecOption, error) {
	if timeout == "" {
		return nil, nil
	}
	d, err := shell.ParseTimeout(timeout)
	if err != nil {
		return nil, err
	}
	return []shell.ExecOption{shell.WithTimeout(d)}, nil
}

// Exec runs a command and waits for its result. Dropping the connection
// interrupts the command.
func (h *Handlers) Exec(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req ExecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	opts, err := execOptions(req.Timeout)
	if err != nil {
		h.respondError(c, err)
		return
	}

	res, err := s.Execute(c.Request.Context(), req.Command, opts...)
	if res == nil {
		h.respondError(c, err)
		return
	}

	resp := ExecResponse{Session: s.Name(), Result: res}
	code := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		code = errorStatus(err)
		h.logger.Warn("Command ended with session loss",
			zap.String("session", s.Name()),
			zap.Error(err),
		)
	}
	c.JSON(code, resp)
}

// SignalRequest names the signal to deliver.
type SignalRequest struct {
	Signal string `json:"signal"`
}

// Signal delivers a signal to the session's running command. The default is
// SIGINT.
func (h *Handlers) Signal(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	req := SignalRequest{Signal: "INT"}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request: "+err.Error())
			return
		}
	}
	sig, err := process.ParseSignal(req.Signal)
	if err != nil {
		h.respondError(c, err)
		return
	}

	delivered, err := s.SendSignal(sig)
	if err != nil {
		h.respondError(c, err)
		return
	}
	name := process.SignalName(sig)
	if delivered && h.metrics != nil {
		h.metrics.RecordSignal(name)
	}
	c.JSON(http.StatusOK, gin.H{
		"session":   s.Name(),
		"signal":    name,
		"delivered": delivered,
	})
}
