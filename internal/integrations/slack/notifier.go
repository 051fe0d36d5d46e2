package slackbot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slack-go/slack"

	"trialdesk/internal/httpx"
	"trialdesk/internal/logging"
)

// Notifier posts comparison summaries and export files to one channel.
type Notifier struct {
	api       *slack.Client
	channelID string
}

func NewNotifier(token, channelID string, opts ...slack.Option) *Notifier {
	opts = append([]slack.Option{slack.OptionHTTPClient(httpx.ExternalHTTPClient())}, opts...)
	return &Notifier{api: slack.New(token, opts...), channelID: channelID}
}

func (n *Notifier) PostSummary(ctx context.Context, text string) error {
	_, _, err := n.api.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		logging.L().Warnf("slack post error channel=%s: %v", n.channelID, err)
		return fmt.Errorf("posting to slack: %w", err)
	}
	logging.L().Infof("slack posted summary channel=%s", n.channelID)
	return nil
}

// UploadFile uploads a non-empty file with an optional comment.
func (n *Notifier) UploadFile(ctx context.Context, path, title, comment string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if fi.Size() <= 0 {
		return fmt.Errorf("uploading %s: file is empty", path)
	}
	_, err = n.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		File:           path,
		FileSize:       int(fi.Size()),
		Filename:       filepath.Base(path),
		Channel:        n.channelID,
		Title:          title,
		InitialComment: comment,
	})
	if err != nil {
		logging.L().Warnf("slack upload error file=%s: %v", path, err)
		return fmt.Errorf("uploading %s to slack: %w", filepath.Base(path), err)
	}
	logging.L().Infof("slack uploaded file=%s channel=%s", filepath.Base(path), n.channelID)
	return nil
}
