package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/logger"
)

const (
	minInlineRunes = 2

	// placeholderText is posted by an inline result until the audio
	// replaces it.
	placeholderText = "⌛"
)

func (b *Bot) handleInline(ctx context.Context, q *tgbotapi.InlineQuery) {
	text := strings.TrimSpace(q.Query)
	if utf8.RuneCountInString(text) < minInlineRunes {
		return
	}
	if q.From != nil && !b.allow(ctx, q.From.ID) {
		return
	}

	resp, err := b.search.Search(ctx, searcher.Request{
		Query:  text,
		Mode:   engine.ModeAll,
		Limit:  b.cfg.InlineLimit,
		Origin: searcher.OriginInline,
	})
	if err != nil || len(resp.Results) == 0 {
		return
	}
	b.catalog.Remember(ctx, resp.Results)

	answer := tgbotapi.InlineConfig{
		InlineQueryID: q.ID,
		Results:       Articles(resp.Results, b.cfg.InlineLimit),
		CacheTime:     b.cfg.InlineCacheTime,
		IsPersonal:    true,
	}
	if _, err := b.api.Request(answer); err != nil {
		logger.FromContext(ctx).Warn("answering inline query failed", "query", text, "error", err)
	}
}

// Articles renders up to limit candidates as inline results. Each result
// posts a placeholder that the chosen-result handler swaps for the audio.
func Articles(candidates []track.Candidate, limit int) []interface{} {
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return lo.Map(candidates, func(c track.Candidate, _ int) interface{} {
		article := tgbotapi.NewInlineQueryResultArticle(
			NewPayload(ActionDownload, c.Key()).String(),
			c.DisplayTitle(),
			placeholderText,
		)
		article.Description = Description(c)
		article.ThumbURL = c.ArtworkURL
		markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(".", NewPayload(ActionFetch, c.Key()).String()),
		))
		article.ReplyMarkup = &markup
		return article
	})
}

// Description is the two-line subtitle of an inline result:
// "artist\nmm:ss • plays".
func Description(c track.Candidate) string {
	line := c.Duration()
	if plays := track.FormatPlays(c.PlayCount); plays != "" {
		line += " • " + plays
	}
	return fmt.Sprintf("%s\n%s", c.Artist, line)
}

func (b *Bot) handleChosen(ctx context.Context, chosen *tgbotapi.ChosenInlineResult) {
	p, err := ParsePayload(chosen.ResultID)
	if err != nil || p.Action != ActionDownload {
		logger.FromContext(ctx).Debug("ignoring chosen result", "result_id", chosen.ResultID)
		return
	}
	if chosen.InlineMessageID == "" {
		return
	}
	b.deliverInline(ctx, chosen.InlineMessageID, p.Key)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	log := logger.FromContext(ctx)
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			log.Debug("answering callback failed", "error", err)
		}
	}()

	p, err := ParsePayload(cb.Data)
	if err != nil {
		log.Debug("ignoring callback", "data", cb.Data)
		return
	}
	switch p.Action {
	case ActionFetch:
		if cb.InlineMessageID != "" {
			b.deliverInline(ctx, cb.InlineMessageID, p.Key)
		}
	case ActionPlay:
		if cb.Message != nil && cb.Message.Chat != nil {
			b.sendTrack(ctx, cb.Message.Chat.ID, p.Key)
		}
	}
}
