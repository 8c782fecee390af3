package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/logger"
)

const (
	welcomeText     = "Send me a song name, or type @%s <song> in any chat."
	notFoundText    = "Nothing found."
	rateLimitedText = "Too many requests, try again in a minute."

	buttonsPerRow = 5
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.From == nil {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !msg.Chat.IsPrivate() || text == "" {
		return
	}

	chatID := msg.Chat.ID
	b.register(ctx, msg.From.ID)
	if !b.allow(ctx, msg.From.ID) {
		b.reply(ctx, chatID, rateLimitedText)
		return
	}

	resp, err := b.search.Search(ctx, searcher.Request{
		Query:  text,
		Mode:   engine.ModeAll,
		Limit:  b.cfg.InlineLimit,
		Origin: searcher.OriginMessage,
	})
	if err != nil {
		b.reply(ctx, chatID, failedText)
		return
	}
	if len(resp.Results) == 0 {
		b.reply(ctx, chatID, notFoundText)
		return
	}
	b.catalog.Remember(ctx, resp.Results)

	out := tgbotapi.NewMessage(chatID, ResultList(resp.Results))
	out.ReplyMarkup = ResultKeyboard(resp.Results)
	b.send(ctx, chatID, out)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		b.register(ctx, msg.From.ID)
		b.reply(ctx, chatID, fmt.Sprintf(welcomeText, b.username))
	case "stats":
		if b.cfg.AdminID == 0 || msg.From.ID != b.cfg.AdminID {
			return
		}
		b.reply(ctx, chatID, b.statsText(ctx))
	}
}

func (b *Bot) statsText(ctx context.Context) string {
	var sb strings.Builder
	active, err := b.store.CountActive(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("counting users failed", "error", err)
		sb.WriteString("Active users: unavailable\n")
	} else {
		fmt.Fprintf(&sb, "Active users: %d\n", active)
	}
	if b.cacheStats != nil {
		hits, misses := b.cacheStats.Stats()
		fmt.Fprintf(&sb, "Query cache: %d hits / %d misses\n", hits, misses)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// ResultList renders a numbered search reply, one "n. artist - title (mm:ss)"
// line per candidate.
func ResultList(candidates []track.Candidate) string {
	lines := lo.Map(candidates, func(c track.Candidate, i int) string {
		return fmt.Sprintf("%d. %s - %s (%s)", i+1, c.Artist, c.DisplayTitle(), c.Duration())
	})
	return strings.Join(lines, "\n")
}

// ResultKeyboard has one numbered play button per candidate.
func ResultKeyboard(candidates []track.Candidate) tgbotapi.InlineKeyboardMarkup {
	buttons := lo.Map(candidates, func(c track.Candidate, i int) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(i+1), NewPayload(ActionPlay, c.Key()).String())
	})
	rows := lo.Map(lo.Chunk(buttons, buttonsPerRow), func(row []tgbotapi.InlineKeyboardButton, _ int) []tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardRow(row...)
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) register(ctx context.Context, userID int64) {
	if err := b.store.AddUser(ctx, userID); err != nil {
		logger.FromContext(ctx).Warn("registering user failed", "user_id", userID, "error", err)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	b.send(ctx, chatID, tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(ctx context.Context, chatID int64, c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		if Blocked(err) {
			if err := b.store.MarkInactive(ctx, chatID); err != nil {
				logger.FromContext(ctx).Warn("deactivating user failed", "user_id", chatID, "error", err)
			}
			return
		}
		logger.FromContext(ctx).Warn("sending message failed", "chat_id", chatID, "error", err)
	}
}

// Blocked reports whether err means the user blocked the bot.
func Blocked(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && tgErr.Code == http.StatusForbidden
}
