package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codehub/internal/common/http/middleware"
	"codehub/internal/submission/model"
	"codehub/internal/submission/service"
	"codehub/pkg/utils/logger"
	"codehub/pkg/utils/response"
)

// StreamConfig tunes the progress websocket.
type StreamConfig struct {
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	// PollInterval and MaxWait apply when this process does not own the evaluation.
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxWait      time.Duration `yaml:"maxWait"`
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 2 * time.Minute
	}
	return c
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stream pushes evaluation progress of one of the caller's submissions.
func (h *SubmissionController) Stream(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}
	submissionID := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.queries.GetSubmission(ctx, userID, submissionID); err != nil {
		response.Error(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	// drain control frames so close from the peer is noticed
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	replay, events, cancel, known := h.progress.Subscribe(submissionID)
	defer cancel()
	if !known {
		h.streamFromStore(ctx, conn, userID, submissionID, peerGone)
		return
	}
	for _, ev := range replay {
		if !h.send(conn, ev) {
			return
		}
	}
	if events == nil {
		h.close(conn)
		return
	}
	for {
		select {
		case ev, open := <-events:
			if !open {
				h.close(conn)
				return
			}
			if !h.send(conn, ev) {
				return
			}
		case <-peerGone:
			return
		}
	}
}

// streamFromStore reports a submission evaluated elsewhere by polling its row.
func (h *SubmissionController) streamFromStore(ctx context.Context, conn *websocket.Conn, userID int64, submissionID string, peerGone <-chan struct{}) {
	ticker := time.NewTicker(h.stream.PollInterval)
	defer ticker.Stop()
	deadline := time.After(h.stream.MaxWait)
	for {
		detail, err := h.queries.GetSubmission(ctx, userID, submissionID)
		if err != nil {
			logger.Warn(ctx, "stream lookup failed", zap.Error(err))
			return
		}
		sub := detail.Submission
		if sub.Status != model.StatusRunning && sub.Status != model.StatusPending {
			for i := range detail.Results {
				if !h.send(conn, service.ProgressEvent{Type: service.ProgressTestCase, SubmissionID: sub.ID, Result: &detail.Results[i]}) {
					return
				}
			}
			if h.send(conn, service.ProgressEvent{
				Type:         service.ProgressFinished,
				SubmissionID: sub.ID,
				Status:       sub.Status,
				Time:         sub.Time,
				Memory:       sub.Memory,
			}) {
				h.close(conn)
			}
			return
		}
		select {
		case <-ticker.C:
		case <-deadline:
			h.close(conn)
			return
		case <-peerGone:
			return
		}
	}
}

func (h *SubmissionController) send(conn *websocket.Conn, ev service.ProgressEvent) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(h.stream.WriteTimeout))
	return conn.WriteJSON(ev) == nil
}

func (h *SubmissionController) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.stream.WriteTimeout))
}
