package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/logger"
)

const (
	maxTitleRunes     = 100
	maxPerformerRunes = 64

	failedText = "❌"
	relayText  = "❌ Err"
)

var (
	errNoRelay       = errors.New("no relay channel configured")
	errAudioRefused  = errors.New("chat refused audio and no relay copy exists")
	errMissingUpload = errors.New("relay message carries no audio")
)

// deliverInline replaces the placeholder of an inline result with the
// audio. It tries, in order: the cached Telegram file, the resolved stream
// URL, a relay upload through the dump channel, and finally a link to the
// relay copy when the target chat refuses audio.
func (b *Bot) deliverInline(ctx context.Context, inlineID string, key track.Key) {
	start := time.Now()
	method, err := b.swapInline(ctx, inlineID, key)
	b.recordDelivery(ctx, key, method, err, time.Since(start))
}

func (b *Bot) swapInline(ctx context.Context, inlineID string, key track.Key) (string, error) {
	meta := b.lookup(ctx, key)

	if cached, ok := b.cachedFile(ctx, key); ok {
		if err := b.editAudio(inlineID, tgbotapi.FileID(cached.FileID), meta); err == nil {
			return analytics.MethodCached, nil
		}
		return b.linkFallback(inlineID, cached.MessageID)
	}

	url, err := b.search.Resolve(ctx, key, meta.MediaLocator)
	if err != nil {
		b.editText(ctx, inlineID, failedText)
		return analytics.MethodDirect, fmt.Errorf("resolving %s: %w", key, err)
	}
	if err := b.editAudio(inlineID, tgbotapi.FileURL(url), meta); err == nil {
		return analytics.MethodDirect, nil
	}

	file, err := b.relay(ctx, key, url, meta)
	if err != nil {
		b.editText(ctx, inlineID, relayText)
		return analytics.MethodRelay, err
	}
	if err := b.editAudio(inlineID, tgbotapi.FileID(file.FileID), meta); err == nil {
		return analytics.MethodRelay, nil
	}
	return b.linkFallback(inlineID, file.MessageID)
}

// sendTrack posts the audio into a private chat.
func (b *Bot) sendTrack(ctx context.Context, chatID int64, key track.Key) {
	start := time.Now()
	method, err := b.sendAudio(ctx, chatID, key)
	b.recordDelivery(ctx, key, method, err, time.Since(start))
	if err != nil {
		b.reply(ctx, chatID, failedText)
	}
}

func (b *Bot) sendAudio(ctx context.Context, chatID int64, key track.Key) (string, error) {
	meta := b.lookup(ctx, key)

	if cached, ok := b.cachedFile(ctx, key); ok {
		if _, err := b.api.Send(b.audioConfig(chatID, tgbotapi.FileID(cached.FileID), meta)); err == nil {
			return analytics.MethodCached, nil
		}
	}

	url, err := b.search.Resolve(ctx, key, meta.MediaLocator)
	if err != nil {
		return analytics.MethodDirect, fmt.Errorf("resolving %s: %w", key, err)
	}
	msg, err := b.api.Send(b.audioConfig(chatID, tgbotapi.FileURL(url), meta))
	if err != nil {
		return analytics.MethodDirect, fmt.Errorf("sending %s: %w", key, err)
	}
	if msg.Audio != nil {
		b.saveFile(ctx, storage.CachedFile{Key: key, FileID: msg.Audio.FileID})
	}
	return analytics.MethodDirect, nil
}

// relay uploads the stream into the dump channel and caches the resulting
// file id.
func (b *Bot) relay(ctx context.Context, key track.Key, url string, meta track.Candidate) (storage.CachedFile, error) {
	if b.cfg.DumpChannelID == 0 {
		return storage.CachedFile{}, fmt.Errorf("relaying %s: %w", key, errNoRelay)
	}
	audio := b.audioConfig(b.cfg.DumpChannelID, tgbotapi.FileURL(url), meta)
	audio.Caption = fmt.Sprintf("#%s %s", key.Source.Code(), key.ExternalID)

	msg, err := b.api.Send(audio)
	if err != nil {
		return storage.CachedFile{}, fmt.Errorf("relaying %s: %w", key, err)
	}
	if msg.Audio == nil {
		return storage.CachedFile{}, fmt.Errorf("relaying %s: %w", key, errMissingUpload)
	}
	file := storage.CachedFile{Key: key, FileID: msg.Audio.FileID, MessageID: msg.MessageID}
	b.saveFile(ctx, file)
	return file, nil
}

func (b *Bot) linkFallback(inlineID string, messageID int) (string, error) {
	if messageID == 0 {
		return analytics.MethodLink, errAudioRefused
	}
	link := ChannelLink(b.cfg.DumpChannelID, b.cfg.DumpChannelUsername, messageID)
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("▶ Play", link),
	))
	edit := tgbotapi.EditMessageTextConfig{
		BaseEdit: tgbotapi.BaseEdit{
			InlineMessageID: inlineID,
			ReplyMarkup:     &markup,
		},
		Text:      fmt.Sprintf(`<a href="%s">&#8203;</a>🚫`, link),
		ParseMode: tgbotapi.ModeHTML,
	}
	if _, err := b.api.Request(edit); err != nil {
		return analytics.MethodLink, fmt.Errorf("posting relay link: %w", err)
	}
	return analytics.MethodLink, nil
}

// ChannelLink points at a message in the dump channel, by username when the
// channel is public.
func ChannelLink(channelID int64, username string, messageID int) string {
	if username = strings.TrimPrefix(username, "@"); username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", username, messageID)
	}
	internal := strings.TrimPrefix(strconv.FormatInt(channelID, 10), "-100")
	return fmt.Sprintf("https://t.me/c/%s/%d", internal, messageID)
}

func (b *Bot) editAudio(inlineID string, file tgbotapi.RequestFileData, meta track.Candidate) error {
	media := tgbotapi.NewInputMediaAudio(file)
	title, performer := audioTags(meta)
	media.Title = title
	media.Performer = performer
	media.Duration = int(meta.DurationMs / 1000)
	media.Caption = b.caption()

	_, err := b.api.Request(tgbotapi.EditMessageMediaConfig{
		BaseEdit: tgbotapi.BaseEdit{InlineMessageID: inlineID},
		Media:    media,
	})
	return err
}

func (b *Bot) editText(ctx context.Context, inlineID, text string) {
	edit := tgbotapi.EditMessageTextConfig{
		BaseEdit: tgbotapi.BaseEdit{InlineMessageID: inlineID},
		Text:     text,
	}
	if _, err := b.api.Request(edit); err != nil {
		logger.FromContext(ctx).Debug("editing inline message failed", "error", err)
	}
}

func (b *Bot) audioConfig(chatID int64, file tgbotapi.RequestFileData, meta track.Candidate) tgbotapi.AudioConfig {
	audio := tgbotapi.NewAudio(chatID, file)
	audio.Title, audio.Performer = audioTags(meta)
	audio.Duration = int(meta.DurationMs / 1000)
	audio.Caption = b.caption()
	return audio
}

func (b *Bot) caption() string {
	if b.username == "" {
		return ""
	}
	return "@" + b.username
}

// audioTags returns the title and performer shown by Telegram players.
func audioTags(meta track.Candidate) (string, string) {
	title, performer := meta.DisplayTitle(), meta.Artist
	if title == "" {
		title = "Track"
	}
	if performer == "" {
		performer = "Artist"
	}
	return truncateRunes(title, maxTitleRunes), truncateRunes(performer, maxPerformerRunes)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (b *Bot) lookup(ctx context.Context, key track.Key) track.Candidate {
	if meta, ok := b.catalog.Lookup(ctx, key); ok {
		return meta
	}
	return track.Candidate{Source: key.Source, ExternalID: key.ExternalID}
}

func (b *Bot) cachedFile(ctx context.Context, key track.Key) (storage.CachedFile, bool) {
	f, err := b.store.CachedFile(ctx, key)
	if err != nil {
		if !errors.Is(err, apperrors.ErrTrackNotFound) {
			logger.FromContext(ctx).Warn("file cache lookup failed", "key", key.String(), "error", err)
		}
		return storage.CachedFile{}, false
	}
	return f, true
}

func (b *Bot) saveFile(ctx context.Context, f storage.CachedFile) {
	if err := b.store.SaveFile(ctx, f); err != nil {
		logger.FromContext(ctx).Warn("caching file id failed", "key", f.Key.String(), "error", err)
	}
}

func (b *Bot) recordDelivery(ctx context.Context, key track.Key, method string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		logger.FromContext(ctx).Warn("track delivery failed", "key", key.String(), "method", method, "error", err)
	} else {
		logger.FromContext(ctx).Info("track delivered", "key", key.String(), "method", method, "latency_ms", elapsed.Milliseconds())
	}
	if b.metrics != nil {
		b.metrics.TracksDeliveredTotal.WithLabelValues(method, outcome).Inc()
	}
	b.collector.Track(analytics.DeliveryEvent{
		Source:     key.Source,
		ExternalID: key.ExternalID,
		Method:     method,
		OK:         err == nil,
		LatencyMs:  elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
}
