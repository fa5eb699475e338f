package handlers

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/edgard/pollbot/internal/database"
	"github.com/edgard/pollbot/internal/dispatcher"
	"github.com/edgard/pollbot/internal/request"
)

// NewVoiceHandler returns a handler that downloads voice notes into the
// download directory.
func NewVoiceHandler(deps HandlerDeps) dispatcher.Handler {
	return dispatcher.HandlerFunc(voiceHandler{deps}.Handle)
}

type voiceHandler struct {
	deps HandlerDeps
}

func (h voiceHandler) Handle(ctx context.Context, _ *database.Conn, req *request.Request) {
	if !req.HasAttachment() || req.Attachment.Kind != request.AttachmentVoice {
		return
	}

	target := filepath.Join(h.deps.DownloadDir, fmt.Sprintf("voice-%d-%d.oga", req.ChatID, req.MessageID))
	log := h.deps.Logger.With("handler", "voice", "file_id", req.Attachment.FileID, "target", target)

	if !h.deps.Messenger.GetFile(ctx, req.Attachment.FileID, target) {
		log.WarnContext(ctx, "Failed to download voice note")
		return
	}
	log.InfoContext(ctx, "Voice note saved", "size", req.Attachment.Size)
}
