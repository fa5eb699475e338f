package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// SentMessage identifies a message the bot sent.
type SentMessage struct {
	ChatID    int64
	MessageID int
}

// SendMessage sends text to chatID using Markdown with link previews
// disabled. A non-zero replyTo makes the message a reply.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int) (SentMessage, bool) {
	params := &bot.SendMessageParams{
		ChatID:             chatID,
		Text:               text,
		ParseMode:          models.ParseModeMarkdownV1,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	}
	if replyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo}
	}

	msg, err := c.api.SendMessage(ctx, params)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to send message", "chat_id", chatID, "error", err)
		return SentMessage{}, false
	}
	return SentMessage{ChatID: msg.Chat.ID, MessageID: msg.ID}, true
}

// EditMessageText replaces the text of a message previously sent by the bot.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) bool {
	_, err := c.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:             chatID,
		MessageID:          messageID,
		Text:               text,
		ParseMode:          models.ParseModeMarkdownV1,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to edit message", "chat_id", chatID, "message_id", messageID, "error", err)
		return false
	}
	return true
}

// SendImage uploads the image at filename to chatID.
func (c *Client) SendImage(ctx context.Context, chatID int64, filename string) bool {
	f, err := os.Open(filename)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to open image", "filename", filename, "error", err)
		return false
	}
	defer f.Close()

	_, err = c.api.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID: chatID,
		Photo:  &models.InputFileUpload{Filename: filepath.Base(filename), Data: f},
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to send image", "chat_id", chatID, "filename", filename, "error", err)
		return false
	}
	return true
}

// GetFile downloads the file with the given id to target. A partially
// written target is removed on failure.
func (c *Client) GetFile(ctx context.Context, fileID, target string) bool {
	log := c.logger.With("file_id", fileID, "target", target)

	file, err := c.api.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		log.WarnContext(ctx, "Failed to resolve file", "error", err)
		return false
	}
	if file.FilePath == "" {
		log.WarnContext(ctx, "File has no download path")
		return false
	}

	if err := c.download(ctx, c.api.FileDownloadLink(file), target); err != nil {
		log.WarnContext(ctx, "Failed to download file", "error", err)
		return false
	}
	log.DebugContext(ctx, "File downloaded", "size", file.FileSize)
	return true
}

func (c *Client) download(ctx context.Context, link, target string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", redactToken(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", target, cerr)
		}
		if err != nil {
			_ = os.Remove(target)
		}
	}()

	if _, err = io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}
