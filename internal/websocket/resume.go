package websocket

import (
	"context"
	"strconv"
	"strings"

	"github.com/swecc-uw/swecc-sockets/internal/logger"
)

// ResumeHandler is a receiver only: clients accept no commands on this
// service, frames arrive out-of-band from the AMQP Bridge's resume
// consumer and are delivered via Deliver (§4.8, §6).
type ResumeHandler struct {
	registry *Registry
}

// NewResumeHandler builds a ResumeHandler bound to registry for delivery
// lookups.
func NewResumeHandler(registry *Registry) *ResumeHandler {
	return &ResumeHandler{registry: registry}
}

// Register wires the handler's Connect/Disconnect entry points onto
// emitter. There is no Message listener: the service accepts no
// client-initiated commands.
func (h *ResumeHandler) Register(emitter *Emitter) {
	emitter.On(EventConnect, h.onConnect)
	emitter.On(EventDisconnect, h.onDisconnect)
}

func (h *ResumeHandler) onConnect(ctx context.Context, e Event) error {
	e.Conn.Send(Frame{
		Type:    TypeSystem,
		Message: "Resume notifications: Connected as " + e.Username,
	})
	return nil
}

func (h *ResumeHandler) onDisconnect(ctx context.Context, e Event) error {
	logger.Registry().Debug().Uint64("user_id", e.UserID).Msg("resume connection closed")
	return nil
}

// ResumeReview is the decoded AMQP payload for the canonical resume
// consumer (§4.8).
type ResumeReview struct {
	Feedback string `json:"feedback"`
	Key      string `json:"key"`
}

// Deliver parses key as "<user_id>-<resume_id>-<file_name>" (split on the
// first two '-'; the filename may itself contain '-') and, if a live Resume
// connection exists for user_id, sends a resume_reviewed frame. Parse or
// delivery failures are logged and dropped; the Bridge never retries to a
// now-absent connection (§4.8, §9 open question).
func (h *ResumeHandler) Deliver(review ResumeReview) {
	userID, resumeID, fileName, ok := parseResumeKey(review.Key)
	if !ok {
		logger.Broker().Warn().Str("key", review.Key).Msg("malformed resume key, dropping")
		return
	}

	conn := h.registry.Lookup(ServiceResume, userID)
	if conn == nil {
		logger.Broker().Warn().Uint64("user_id", userID).Msg("no resume connection for user, dropping notification")
		return
	}

	sent := conn.Send(Frame{
		Type:   TypeResumeReviewed,
		UserID: userID,
		Data: map[string]interface{}{
			"resume_id": resumeID,
			"file_name": fileName,
			"feedback":  review.Feedback,
		},
	})
	if !sent {
		logger.Broker().Warn().Uint64("user_id", userID).Msg("failed to deliver resume notification")
	}
}

// parseResumeKey splits "<user_id>-<resume_id>-<file_name>" on the first
// two '-', validating that the first two components parse as integers.
func parseResumeKey(key string) (userID uint64, resumeID, fileName string, ok bool) {
	first := strings.Index(key, "-")
	if first < 0 {
		return 0, "", "", false
	}
	second := strings.Index(key[first+1:], "-")
	if second < 0 {
		return 0, "", "", false
	}
	second += first + 1

	userPart := key[:first]
	resumePart := key[first+1 : second]
	namePart := key[second+1:]

	uid, err := strconv.ParseUint(userPart, 10, 64)
	if err != nil {
		return 0, "", "", false
	}
	if _, err := strconv.Atoi(resumePart); err != nil {
		return 0, "", "", false
	}

	return uid, resumePart, namePart, true
}
