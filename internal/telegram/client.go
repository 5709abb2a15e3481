/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telegram wraps the MTProto client behind the narrow browsing
// contract the track source needs: list a channel's audio messages and
// stream one document. Session state lives in a file so a logged-in user
// account survives restarts; a bot token works without any login step but
// only for channels the bot was added to.
package telegram

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gotd/contrib/bg"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/friendsincode/yurets_fm/internal/source"
)

// Options carries the MTProto credentials.
type Options struct {
	APIID       int
	APIHash     string
	BotToken    string // optional; used when the session file holds no user login
	SessionFile string
}

type channelPeer struct {
	id         int64
	accessHash int64
	title      string
}

// Client is a connected MTProto session. Safe for concurrent use.
type Client struct {
	api    *tg.Client
	stop   bg.StopFunc
	logger zerolog.Logger

	mu    sync.Mutex
	peers map[string]channelPeer
}

// Dial connects and authorizes. The session file is tried first; when it
// holds no authorization and a bot token is configured, the bot is logged
// in. Otherwise Dial fails and the operator has to run the login command.
func Dial(ctx context.Context, opts Options, logger zerolog.Logger) (*Client, error) {
	client := telegram.NewClient(opts.APIID, opts.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: opts.SessionFile},
	})

	stop, err := bg.Connect(client)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	status, err := client.Auth().Status(ctx)
	if err != nil {
		_ = stop()
		return nil, fmt.Errorf("auth status: %w", err)
	}
	if !status.Authorized {
		if opts.BotToken == "" {
			_ = stop()
			return nil, fmt.Errorf("session %s not authorized and no bot token set, run the telegram-login command", opts.SessionFile)
		}
		if _, err := client.Auth().Bot(ctx, opts.BotToken); err != nil {
			_ = stop()
			return nil, fmt.Errorf("bot login: %w", err)
		}
	}

	c := &Client{
		api:    client.API(),
		stop:   stop,
		logger: logger.With().Str("component", "telegram").Logger(),
		peers:  make(map[string]channelPeer),
	}
	c.logger.Info().Str("session", opts.SessionFile).Msg("telegram session established")
	return c, nil
}

// Ready implements source.ChannelBrowser.
func (c *Client) Ready() bool { return c != nil && c.api != nil }

// Close stops the background connection.
func (c *Client) Close() error {
	if c.stop == nil {
		return nil
	}
	return c.stop()
}

// ListAudio implements source.ChannelBrowser. It reads the newest messages
// of the channel and keeps the document-bearing ones.
func (c *Client) ListAudio(ctx context.Context, channel string, limit int) ([]source.ChannelItem, error) {
	peer, err := c.resolve(ctx, channel)
	if err != nil {
		return nil, err
	}

	history, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  &tg.InputPeerChannel{ChannelID: peer.id, AccessHash: peer.accessHash},
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("get history for %s: %w", channel, err)
	}

	var items []source.ChannelItem
	for _, msg := range historyMessages(history) {
		m, ok := msg.(*tg.Message)
		if !ok {
			continue
		}
		doc := messageDocument(m)
		if doc == nil {
			continue
		}
		item := itemFromDocument(m.ID, doc)
		if item.Filename == "" {
			continue
		}
		items = append(items, item)
	}

	c.logger.Debug().Str("channel", channel).Int("items", len(items)).Msg("listed channel audio")
	return items, nil
}

// Download implements source.ChannelBrowser. The message is re-fetched by
// ID so a listing served from an external cache still resolves to a live
// file reference.
func (c *Client) Download(ctx context.Context, channel string, messageID int) (io.ReadCloser, error) {
	peer, err := c.resolve(ctx, channel)
	if err != nil {
		return nil, err
	}

	res, err := c.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: &tg.InputChannel{ChannelID: peer.id, AccessHash: peer.accessHash},
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: messageID}},
	})
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", messageID, err)
	}

	var doc *tg.Document
	for _, msg := range historyMessages(res) {
		if m, ok := msg.(*tg.Message); ok && m.ID == messageID {
			doc = messageDocument(m)
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("message %d in %s carries no document", messageID, channel)
	}

	pr, pw := io.Pipe()
	dl := downloader.NewDownloader()
	go func() {
		_, err := dl.Download(c.api, doc.AsInputDocumentFileLocation()).Stream(ctx, pw)
		pw.CloseWithError(err)
	}()
	return pr, nil
}

// ChannelTitle implements source.ChannelBrowser.
func (c *Client) ChannelTitle(ctx context.Context, channel string) (string, error) {
	peer, err := c.resolve(ctx, channel)
	if err != nil {
		return "", err
	}
	return peer.title, nil
}

// resolve maps a public @username to a channel peer, cached for the life of
// the process. Access hashes are per-session, so the cache never needs to
// be shared.
func (c *Client) resolve(ctx context.Context, channel string) (channelPeer, error) {
	username := strings.TrimPrefix(channel, "@")

	c.mu.Lock()
	if peer, ok := c.peers[username]; ok {
		c.mu.Unlock()
		return peer, nil
	}
	c.mu.Unlock()

	res, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return channelPeer{}, fmt.Errorf("resolve %s: %w", channel, err)
	}

	for _, chat := range res.Chats {
		ch, ok := chat.(*tg.Channel)
		if !ok {
			continue
		}
		peer := channelPeer{id: ch.ID, accessHash: ch.AccessHash, title: ch.Title}
		c.mu.Lock()
		c.peers[username] = peer
		c.mu.Unlock()
		return peer, nil
	}
	return channelPeer{}, fmt.Errorf("%s is not a channel", channel)
}

func historyMessages(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch h := res.(type) {
	case *tg.MessagesChannelMessages:
		return h.Messages
	case *tg.MessagesMessages:
		return h.Messages
	case *tg.MessagesMessagesSlice:
		return h.Messages
	default:
		return nil
	}
}

func messageDocument(m *tg.Message) *tg.Document {
	media, ok := m.Media.(*tg.MessageMediaDocument)
	if !ok {
		return nil
	}
	doc, ok := media.Document.AsNotEmpty()
	if !ok {
		return nil
	}
	return doc
}

// itemFromDocument flattens the document attributes. A missing filename is
// synthesized from the MIME type so voice notes and bare uploads still pass
// the extension filter when they match the stream type.
func itemFromDocument(messageID int, doc *tg.Document) source.ChannelItem {
	item := source.ChannelItem{
		MessageID: messageID,
		ByteSize:  doc.Size,
	}

	var title, performer string
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeAudio:
			title = a.Title
			performer = a.Performer
			item.Duration = time.Duration(a.Duration) * time.Second
		case *tg.DocumentAttributeFilename:
			item.Filename = a.FileName
		}
	}

	switch {
	case performer != "" && title != "":
		item.Title = performer + " - " + title
	case title != "":
		item.Title = title
	}

	if item.Filename == "" {
		item.Filename = fmt.Sprintf("%d%s", messageID, extensionForMIME(doc.MimeType))
	}
	return item
}

func extensionForMIME(mimeType string) string {
	switch mimeType {
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	default:
		return ""
	}
}
