package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/bot/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/metrics"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []tgbotapi.Chattable
	sent     []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopped  bool

	requestErr func(tgbotapi.Chattable) error
	sendErr    func(tgbotapi.Chattable) error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if f.sendErr != nil {
		if err := f.sendErr(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	msg := tgbotapi.Message{MessageID: 77}
	if _, ok := c.(tgbotapi.AudioConfig); ok {
		msg.Audio = &tgbotapi.Audio{FileID: "uploaded"}
	}
	return msg, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if f.requestErr != nil {
		if err := f.requestErr(c); err != nil {
			return nil, err
		}
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeAPI) allRequests() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.requests...)
}

func (f *fakeAPI) allSent() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

// mediaEdits returns the files used by each edit-media request, in order.
func (f *fakeAPI) mediaEdits() []tgbotapi.RequestFileData {
	var out []tgbotapi.RequestFileData
	for _, c := range f.allRequests() {
		if edit, ok := c.(tgbotapi.EditMessageMediaConfig); ok {
			out = append(out, edit.Media.(tgbotapi.InputMediaAudio).Media)
		}
	}
	return out
}

func (f *fakeAPI) textEdits() []tgbotapi.EditMessageTextConfig {
	var out []tgbotapi.EditMessageTextConfig
	for _, c := range f.allRequests() {
		if edit, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, edit)
		}
	}
	return out
}

func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	var out []tgbotapi.MessageConfig
	for _, c := range f.allSent() {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

type fakeSearcher struct {
	mu         sync.Mutex
	results    []track.Candidate
	err        error
	url        string
	resolveErr error
	requests   []searcher.Request
	locators   []string
}

func (f *fakeSearcher) Search(_ context.Context, req searcher.Request) (*searcher.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &searcher.Response{Result: &engine.Result{Query: req.Query, Results: f.results}}, nil
}

func (f *fakeSearcher) Resolve(_ context.Context, _ track.Key, locator string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locators = append(f.locators, locator)
	return f.url, f.resolveErr
}

type fakeStore struct {
	mu       sync.Mutex
	users    map[int64]bool
	files    map[track.Key]storage.CachedFile
	countErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[int64]bool{}, files: map[track.Key]storage.CachedFile{}}
}

func (s *fakeStore) AddUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = true
	return nil
}

func (s *fakeStore) CountActive(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	n := 0
	for _, active := range s.users {
		if active {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) MarkInactive(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = false
	return nil
}

func (s *fakeStore) CachedFile(_ context.Context, key track.Key) (storage.CachedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[key]
	if !ok {
		return storage.CachedFile{}, fmt.Errorf("file cache %s: %w", key, apperrors.ErrTrackNotFound)
	}
	return f, nil
}

func (s *fakeStore) SaveFile(_ context.Context, f storage.CachedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[f.Key] = f
	return nil
}

type fixture struct {
	api     *fakeAPI
	search  *fakeSearcher
	store   *fakeStore
	metrics *metrics.Metrics
	bot     *Bot
}

var cadillac = track.Candidate{
	Source:       track.SoundCloud,
	ExternalID:   "123",
	Title:        "MORGENSHTERN - Cadillac",
	Artist:       "MORGENSHTERN",
	PlayCount:    1_500_000,
	DurationMs:   210_000,
	ArtworkURL:   "https://img.example/a.jpg",
	MediaLocator: "https://api.example/media/123",
}

func newFixture(mutate func(*config.TelegramConfig, *Options)) *fixture {
	f := &fixture{
		api:     newFakeAPI(),
		search:  &fakeSearcher{results: []track.Candidate{cadillac}, url: "https://cdn.example/123.mp3"},
		store:   newFakeStore(),
		metrics: metrics.NewWithRegistry(prometheus.NewRegistry()),
	}
	cfg := config.TelegramConfig{
		AdminID:         1,
		DumpChannelID:   -1001234567890,
		InlineLimit:     10,
		InlineCacheTime: 300,
		RateLimit:       100,
		RateWindow:      time.Minute,
	}
	opts := Options{Username: "tunebot", Metrics: f.metrics}
	if mutate != nil {
		mutate(&cfg, &opts)
	}
	f.bot = New(f.api, cfg, f.search, f.store, opts)
	return f
}

func inlineQuery(text string) tgbotapi.Update {
	return tgbotapi.Update{InlineQuery: &tgbotapi.InlineQuery{ID: "q1", From: &tgbotapi.User{ID: 5}, Query: text}}
}

func chosen(resultID string) tgbotapi.Update {
	return tgbotapi.Update{ChosenInlineResult: &tgbotapi.ChosenInlineResult{
		ResultID:        resultID,
		From:            &tgbotapi.User{ID: 5},
		InlineMessageID: "im-1",
	}}
}

func privateMessage(userID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: userID, Type: "private"},
		From: &tgbotapi.User{ID: userID},
	}
	if len(text) > 0 && text[0] == '/' {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	}
	return tgbotapi.Update{Message: msg}
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		data    string
		want    Payload
		wantErr bool
	}{
		{"dl:sc:123", Payload{ActionDownload, track.Key{Source: track.SoundCloud, ExternalID: "123"}}, false},
		{"f:yt:dQw4w9WgXcQ", Payload{ActionFetch, track.Key{Source: track.YouTube, ExternalID: "dQw4w9WgXcQ"}}, false},
		{"p:youtube:a:b", Payload{ActionPlay, track.Key{Source: track.YouTube, ExternalID: "a:b"}}, false},
		{"dl:sc:", Payload{}, true},
		{"dl:spotify:1", Payload{}, true},
		{"x:sc:1", Payload{}, true},
		{"garbage", Payload{}, true},
	}
	for _, tt := range tests {
		got, err := ParsePayload(tt.data)
		if tt.wantErr {
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput, tt.data)
			continue
		}
		require.NoError(t, err, tt.data)
		assert.Equal(t, tt.want, got, tt.data)
	}
	p := NewPayload(ActionPlay, cadillac.Key())
	assert.Equal(t, "p:sc:123", p.String())
}

func TestArticles(t *testing.T) {
	second := cadillac
	second.ExternalID = "456"
	results := Articles([]track.Candidate{cadillac, second}, 1)
	require.Len(t, results, 1)

	article := results[0].(tgbotapi.InlineQueryResultArticle)
	assert.Equal(t, "dl:sc:123", article.ID)
	assert.Equal(t, "Cadillac", article.Title)
	assert.Equal(t, "MORGENSHTERN\n03:30 • 1.5M", article.Description)
	assert.Equal(t, cadillac.ArtworkURL, article.ThumbURL)
	require.NotNil(t, article.ReplyMarkup)
	assert.Equal(t, "f:sc:123", *article.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
}

func TestDescriptionWithoutPlays(t *testing.T) {
	c := track.Candidate{Artist: "YouTube", DurationMs: 61_000}
	assert.Equal(t, "YouTube\n01:01", Description(c))
}

func TestInlineQueryAnswered(t *testing.T) {
	f := newFixture(nil)
	f.bot.Handle(context.Background(), inlineQuery("  cadillac "))

	requests := f.api.allRequests()
	require.Len(t, requests, 1)
	answer := requests[0].(tgbotapi.InlineConfig)
	assert.Equal(t, "q1", answer.InlineQueryID)
	assert.Equal(t, 300, answer.CacheTime)
	assert.True(t, answer.IsPersonal)
	assert.Len(t, answer.Results, 1)

	require.Len(t, f.search.requests, 1)
	assert.Equal(t, "cadillac", f.search.requests[0].Query)
	assert.Equal(t, engine.ModeAll, f.search.requests[0].Mode)
	assert.Equal(t, searcher.OriginInline, f.search.requests[0].Origin)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BotUpdatesTotal.WithLabelValues("inline_query")))

	_, ok := f.bot.catalog.Lookup(context.Background(), cadillac.Key())
	assert.True(t, ok)
}

func TestInlineQueryIgnored(t *testing.T) {
	f := newFixture(nil)
	f.bot.Handle(context.Background(), inlineQuery("a"))
	assert.Empty(t, f.search.requests)

	f.search.results = nil
	f.bot.Handle(context.Background(), inlineQuery("nothing here"))
	assert.Empty(t, f.api.allRequests())

	f.search.err = apperrors.ErrProviderUnavailable
	f.bot.Handle(context.Background(), inlineQuery("cadillac"))
	assert.Empty(t, f.api.allRequests())
}

func TestInlineQueryRateLimited(t *testing.T) {
	f := newFixture(func(_ *config.TelegramConfig, o *Options) {
		o.Limiter = ratelimit.NewLocal(1, time.Hour)
	})
	f.bot.Handle(context.Background(), inlineQuery("cadillac"))
	f.bot.Handle(context.Background(), inlineQuery("cadillac"))

	assert.Len(t, f.search.requests, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RateLimitedTotal))
}

func TestDeliverCachedFile(t *testing.T) {
	f := newFixture(nil)
	f.store.files[cadillac.Key()] = storage.CachedFile{Key: cadillac.Key(), FileID: "cached-id", MessageID: 9}

	f.bot.Handle(context.Background(), chosen("dl:sc:123"))

	assert.Equal(t, []tgbotapi.RequestFileData{tgbotapi.FileID("cached-id")}, f.api.mediaEdits())
	assert.Empty(t, f.search.locators)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TracksDeliveredTotal.WithLabelValues("cached", "ok")))
}

func TestDeliverDirect(t *testing.T) {
	f := newFixture(nil)
	f.bot.catalog.Remember(context.Background(), []track.Candidate{cadillac})

	f.bot.Handle(context.Background(), chosen("dl:sc:123"))

	assert.Equal(t, []string{cadillac.MediaLocator}, f.search.locators)
	assert.Equal(t, []tgbotapi.RequestFileData{tgbotapi.FileURL("https://cdn.example/123.mp3")}, f.api.mediaEdits())

	edit := f.api.allRequests()[0].(tgbotapi.EditMessageMediaConfig)
	assert.Equal(t, "im-1", edit.InlineMessageID)
	audio := edit.Media.(tgbotapi.InputMediaAudio)
	assert.Equal(t, "Cadillac", audio.Title)
	assert.Equal(t, "MORGENSHTERN", audio.Performer)
	assert.Equal(t, 210, audio.Duration)
	assert.Equal(t, "@tunebot", audio.Caption)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TracksDeliveredTotal.WithLabelValues("direct", "ok")))
}

func refuseURLMedia(c tgbotapi.Chattable) error {
	if edit, ok := c.(tgbotapi.EditMessageMediaConfig); ok {
		if _, isURL := edit.Media.(tgbotapi.InputMediaAudio).Media.(tgbotapi.FileURL); isURL {
			return &tgbotapi.Error{Code: 400, Message: "Bad Request: wrong file identifier"}
		}
	}
	return nil
}

func TestDeliverRelay(t *testing.T) {
	f := newFixture(nil)
	f.api.requestErr = refuseURLMedia

	f.bot.Handle(context.Background(), chosen("dl:sc:123"))

	sent := f.api.allSent()
	require.Len(t, sent, 1)
	upload := sent[0].(tgbotapi.AudioConfig)
	assert.Equal(t, int64(-1001234567890), upload.ChatID)
	assert.Equal(t, "#sc 123", upload.Caption)

	assert.Equal(t, []tgbotapi.RequestFileData{
		tgbotapi.FileURL("https://cdn.example/123.mp3"),
		tgbotapi.FileID("uploaded"),
	}, f.api.mediaEdits())
	assert.Equal(t, storage.CachedFile{Key: cadillac.Key(), FileID: "uploaded", MessageID: 77}, f.store.files[cadillac.Key()])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TracksDeliveredTotal.WithLabelValues("relay", "ok")))
}

func TestDeliverLinkWhenChatRefusesAudio(t *testing.T) {
	f := newFixture(func(c *config.TelegramConfig, _ *Options) { c.DumpChannelUsername = "@tunedump" })
	f.api.requestErr = func(c tgbotapi.Chattable) error {
		if _, ok := c.(tgbotapi.EditMessageMediaConfig); ok {
			return &tgbotapi.Error{Code: 400, Message: "Bad Request: CHAT_SEND_AUDIOS_FORBIDDEN"}
		}
		return nil
	}

	f.bot.Handle(context.Background(), chosen("dl:sc:123"))

	edits := f.api.textEdits()
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0].Text, "https://t.me/tunedump/77")
	assert.Equal(t, tgbotapi.ModeHTML, edits[0].ParseMode)
	assert.Equal(t, "https://t.me/tunedump/77", *edits[0].ReplyMarkup.InlineKeyboard[0][0].URL)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TracksDeliveredTotal.WithLabelValues("link", "ok")))
}

func TestDeliverResolveFailure(t *testing.T) {
	f := newFixture(nil)
	f.search.resolveErr = apperrors.ErrTrackNotFound

	f.bot.Handle(context.Background(), chosen("dl:sc:123"))

	edits := f.api.textEdits()
	require.Len(t, edits, 1)
	assert.Equal(t, failedText, edits[0].Text)
	assert.Empty(t, f.api.mediaEdits())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TracksDeliveredTotal.WithLabelValues("direct", "failed")))
}

func TestDeliverRelayUnavailable(t *testing.T) {
	f := newFixture(func(c *config.TelegramConfig, _ *Options) { c.DumpChannelID = 0 })
	f.api.requestErr = refuseURLMedia

	f.bot.Handle(context.Background(), chosen("dl:sc:123"))

	assert.Empty(t, f.api.allSent())
	edits := f.api.textEdits()
	require.Len(t, edits, 1)
	assert.Equal(t, relayText, edits[0].Text)
}

func TestChosenIgnoresForeignIDs(t *testing.T) {
	f := newFixture(nil)
	f.bot.Handle(context.Background(), chosen("p:sc:123"))
	f.bot.Handle(context.Background(), chosen("nonsense"))
	assert.Empty(t, f.api.allRequests())
}

func TestFetchCallback(t *testing.T) {
	f := newFixture(nil)
	f.bot.Handle(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:              "cb1",
		From:            &tgbotapi.User{ID: 5},
		InlineMessageID: "im-2",
		Data:            "f:sc:123",
	}})

	assert.Len(t, f.api.mediaEdits(), 1)
	requests := f.api.allRequests()
	answer, ok := requests[len(requests)-1].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cb1", answer.CallbackQueryID)
}

func TestPlayCallbackSendsAudio(t *testing.T) {
	f := newFixture(nil)
	f.bot.Handle(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb2",
		From:    &tgbotapi.User{ID: 5},
		Message: &tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: 5, Type: "private"}},
		Data:    "p:sc:123",
	}})

	sent := f.api.allSent()
	require.Len(t, sent, 1)
	audio := sent[0].(tgbotapi.AudioConfig)
	assert.Equal(t, int64(5), audio.ChatID)
	assert.Equal(t, tgbotapi.FileURL("https://cdn.example/123.mp3"), audio.File)
	assert.Equal(t, "uploaded", f.store.files[cadillac.Key()].FileID)
}

func TestPlayCallbackFailureReplies(t *testing.T) {
	f := newFixture(nil)
	f.search.resolveErr = apperrors.ErrProviderUnavailable
	f.bot.Handle(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb3",
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 5, Type: "private"}},
		Data:    "p:sc:123",
	}})

	msgs := f.api.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, failedText, msgs[0].Text)
}

func TestPrivateMessageSearch(t *testing.T) {
	f := newFixture(nil)
	second := cadillac
	second.ExternalID = "456"
	second.Title = "Cadillac (Remix)"
	f.search.results = []track.Candidate{cadillac, second}

	f.bot.Handle(context.Background(), privateMessage(42, "cadillac"))

	assert.True(t, f.store.users[42])
	msgs := f.api.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "1. MORGENSHTERN - Cadillac (03:30)\n2. MORGENSHTERN - Cadillac (Remix) (03:30)", msgs[0].Text)

	keyboard := msgs[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, keyboard.InlineKeyboard, 1)
	assert.Equal(t, "2", keyboard.InlineKeyboard[0][1].Text)
	assert.Equal(t, "p:sc:456", *keyboard.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, searcher.OriginMessage, f.search.requests[0].Origin)
}

func TestPrivateMessageNothingFound(t *testing.T) {
	f := newFixture(nil)
	f.search.results = nil
	f.bot.Handle(context.Background(), privateMessage(42, "zzzz"))

	msgs := f.api.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, notFoundText, msgs[0].Text)
}

func TestGroupMessagesIgnored(t *testing.T) {
	f := newFixture(nil)
	update := privateMessage(42, "cadillac")
	update.Message.Chat.Type = "group"
	f.bot.Handle(context.Background(), update)
	assert.Empty(t, f.search.requests)
	assert.Empty(t, f.api.allSent())
}

func TestResultKeyboardRows(t *testing.T) {
	cands := make([]track.Candidate, 7)
	for i := range cands {
		cands[i] = track.Candidate{Source: track.YouTube, ExternalID: fmt.Sprint(i)}
	}
	kb := ResultKeyboard(cands)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Len(t, kb.InlineKeyboard[0], 5)
	assert.Len(t, kb.InlineKeyboard[1], 2)
	assert.Equal(t, "p:yt:6", *kb.InlineKeyboard[1][1].CallbackData)
}

func TestStartRegistersUser(t *testing.T) {
	f := newFixture(nil)
	f.bot.Handle(context.Background(), privateMessage(7, "/start"))

	assert.True(t, f.store.users[7])
	msgs := f.api.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "@tunebot")
	assert.Empty(t, f.search.requests)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BotUpdatesTotal.WithLabelValues("command")))
}

type staticCacheStats struct{ hits, misses int64 }

func (s staticCacheStats) Stats() (int64, int64) { return s.hits, s.misses }

func TestStatsAdminOnly(t *testing.T) {
	f := newFixture(func(_ *config.TelegramConfig, o *Options) {
		o.CacheStats = staticCacheStats{hits: 3, misses: 4}
	})
	f.store.users[100] = true
	f.store.users[101] = false

	f.bot.Handle(context.Background(), privateMessage(2, "/stats"))
	assert.Empty(t, f.api.messages())

	f.bot.Handle(context.Background(), privateMessage(1, "/stats"))
	msgs := f.api.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Active users: 1\nQuery cache: 3 hits / 4 misses", msgs[0].Text)
}

func TestStatsCountFailure(t *testing.T) {
	f := newFixture(nil)
	f.store.countErr = errors.New("db down")
	f.bot.Handle(context.Background(), privateMessage(1, "/stats"))

	msgs := f.api.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Active users: unavailable", msgs[0].Text)
}

func TestBlockedUserMarkedInactive(t *testing.T) {
	f := newFixture(nil)
	f.api.sendErr = func(tgbotapi.Chattable) error {
		return &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	}
	f.bot.Handle(context.Background(), privateMessage(42, "cadillac"))
	assert.False(t, f.store.users[42])

	assert.True(t, Blocked(fmt.Errorf("wrapped: %w", &tgbotapi.Error{Code: 403})))
	assert.False(t, Blocked(&tgbotapi.Error{Code: 400}))
	assert.False(t, Blocked(errors.New("plain")))
}

func TestChannelLink(t *testing.T) {
	assert.Equal(t, "https://t.me/c/1234567890/5", ChannelLink(-1001234567890, "", 5))
	assert.Equal(t, "https://t.me/dump/5", ChannelLink(-1001234567890, "@dump", 5))
}

func TestAudioTags(t *testing.T) {
	title, performer := audioTags(track.Candidate{})
	assert.Equal(t, "Track", title)
	assert.Equal(t, "Artist", performer)

	long := track.Candidate{Title: string(make([]rune, 150)), Artist: "A"}
	title, _ = audioTags(long)
	assert.Len(t, []rune(title), maxTitleRunes)
}

func TestHandleRecoversFromPanic(t *testing.T) {
	f := newFixture(nil)
	f.bot.search = nil
	assert.NotPanics(t, func() {
		f.bot.Handle(context.Background(), inlineQuery("cadillac"))
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.bot.Run(ctx) }()

	f.api.updates <- inlineQuery("cadillac")
	assert.Eventually(t, func() bool { return len(f.api.allRequests()) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	f.api.mu.Lock()
	assert.True(t, f.api.stopped)
	f.api.mu.Unlock()
}
