package cli

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seamchat/seam/internal/config"
	"github.com/seamchat/seam/internal/messageapi"
	"github.com/seamchat/seam/internal/timeline"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one message to a conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSend,
	}
	cmd.Flags().String("scope", "", "Conversation scope id")
	cmd.Flags().String("channel", string(timeline.ChannelClient), "Target channel (client, internal)")
	cmd.Flags().String("reply-to", "", "Native id of the message being replied to")
	cmd.Flags().String("reply-channel", "", "Channel of the replied-to message (defaults to --channel)")
	cmd.Flags().String("attach", "", "File to upload and attach")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	content := ""
	if len(args) > 0 {
		content = strings.TrimSpace(args[0])
	}

	scopeID, _ := cmd.Flags().GetString("scope")
	channelFlag, _ := cmd.Flags().GetString("channel")
	replyTo, _ := cmd.Flags().GetString("reply-to")
	replyChannel, _ := cmd.Flags().GetString("reply-channel")
	attachPath, _ := cmd.Flags().GetString("attach")

	if content == "" && attachPath == "" {
		return fmt.Errorf("message body or --attach is required")
	}

	channel := timeline.Channel(channelFlag)
	if !channel.Valid() {
		return fmt.Errorf("invalid channel %q", channelFlag)
	}

	req := messageapi.SendRequest{
		Channel: channel,
		Kind:    timeline.KindText,
		Content: content,
	}
	if replyTo != "" {
		refChannel := channel
		if replyChannel != "" {
			refChannel = timeline.Channel(replyChannel)
			if !refChannel.Valid() {
				return fmt.Errorf("invalid reply channel %q", replyChannel)
			}
		}
		req.ReplyTo = &timeline.ReplyRef{Channel: refChannel, NativeID: replyTo}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	api, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	if attachPath != "" {
		att, err := uploadAttachment(cmd, cfg, attachPath)
		if err != nil {
			return err
		}
		req.Kind = timeline.KindFile
		req.Attachment = &att
	}

	if err := api.Send(cmd.Context(), scopeID, req); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sent")
	return nil
}

func uploadAttachment(cmd *cobra.Command, cfg *config.Config, path string) (timeline.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return timeline.Attachment{}, fmt.Errorf("attach: %w", err)
	}
	defer f.Close()

	store, err := messageapi.NewHTTPAttachmentStore(cfg.API.BaseURL,
		messageapi.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}))
	if err != nil {
		return timeline.Attachment{}, fmt.Errorf("attachment store: %w", err)
	}

	name := filepath.Base(path)
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	att, err := store.Store(cmd.Context(), name, mimeType, f)
	if err != nil {
		return timeline.Attachment{}, err
	}
	return att, nil
}
