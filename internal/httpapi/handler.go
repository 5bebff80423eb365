package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arloliu/go-packedserial/board"
	"github.com/arloliu/go-packedserial/logger"
)

const changeBuffer = 64

type handler struct {
	gw             Gateway
	dir            Directory
	logger         logger.Logger
	pairingTimeout time.Duration
}

func (h *handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

// ready reports 200 when every registered board is Ready.
func (h *handler) ready(c *gin.Context) {
	var pending []string
	for _, snap := range h.gw.Boards() {
		if snap.State != board.Ready.String() {
			pending = append(pending, snap.ID)
		}
	}

	if len(pending) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not-ready", "boards": pending})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *handler) listThings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"things": h.dir.Things()})
}

func (h *handler) getThing(c *gin.Context) {
	thing, ok := h.dir.Thing(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown thing %s", c.Param("id"))})
		return
	}

	c.JSON(http.StatusOK, thing)
}

func (h *handler) getProperty(c *gin.Context) {
	p, err := h.dir.Property(c.Param("id"), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

type setPropertyRequest struct {
	Value any `json:"value"`
}

// setProperty sends the command and returns 202: the cached value changes when the board reports
// the new status.
func (h *handler) setProperty(c *gin.Context) {
	var req setPropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}

	if err := h.gw.SetProperty(c.Request.Context(), c.Param("id"), c.Param("name"), req.Value); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (h *handler) refreshProperty(c *gin.Context) {
	if err := h.gw.GetProperty(c.Request.Context(), c.Param("id"), c.Param("name")); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// streamChanges sends directory changes as server-sent events until the client goes away.
func (h *handler) streamChanges(c *gin.Context) {
	changes, cancel := h.dir.Subscribe(changeBuffer)
	defer cancel()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case change, ok := <-changes:
			if !ok {
				return false
			}
			c.SSEvent(string(change.Kind), change)

			return true
		}
	})
}

func (h *handler) listBoards(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"boards": h.gw.Boards()})
}

type pairingRequest struct {
	Timeout string `json:"timeout"`
}

func (h *handler) startPairing(c *gin.Context) {
	var req pairingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	timeout := h.pairingTimeout
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid timeout %q", req.Timeout)})
			return
		}
		timeout = d
	}

	if err := h.gw.StartPairing(c.Request.Context(), timeout); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "pairing", "timeout": timeout.String()})
}

func (h *handler) cancelPairing(c *gin.Context) {
	h.gw.CancelPairing()
	c.Status(http.StatusNoContent)
}
