package soundcloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/singleflight"
)

var clientIDRe = regexp.MustCompile(`client_id:"([a-zA-Z0-9]{32})"`)

// scriptsToScan is how many of the last asset bundles are searched; the
// client id lives in one of the final two.
const scriptsToScan = 2

// KeyManager holds the current public API client id. The id is scraped
// from the web player's JS bundles whenever the API rejects the old one.
type KeyManager struct {
	http        *http.Client
	discoverURL string

	mu       sync.RWMutex
	clientID string
	group    singleflight.Group
	logger   *slog.Logger
}

func NewKeyManager(httpClient *http.Client, discoverURL, fallbackID string) *KeyManager {
	return &KeyManager{
		http:        httpClient,
		discoverURL: discoverURL,
		clientID:    fallbackID,
		logger:      slog.Default().With("component", "soundcloud-keys"),
	}
}

func (k *KeyManager) ClientID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.clientID
}

// Refresh scrapes a new client id. Concurrent callers share one scrape. On
// failure the previous id is kept.
func (k *KeyManager) Refresh(ctx context.Context) (string, error) {
	v, err, _ := k.group.Do("refresh", func() (interface{}, error) {
		id, err := k.scrape(ctx)
		if err != nil {
			return "", err
		}
		k.mu.Lock()
		k.clientID = id
		k.mu.Unlock()
		k.logger.Info("client id refreshed")
		return id, nil
	})
	if err != nil {
		k.logger.Warn("client id refresh failed", "error", err)
		return "", err
	}
	return v.(string), nil
}

// RefreshAsync starts a Refresh without blocking the caller.
func (k *KeyManager) RefreshAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = k.Refresh(ctx)
	}()
}

func (k *KeyManager) scrape(ctx context.Context) (string, error) {
	body, err := k.get(ctx, k.discoverURL)
	if err != nil {
		return "", fmt.Errorf("fetching discover page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing discover page: %w", err)
	}

	var scripts []string
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if strings.HasPrefix(src, "https://") && strings.Contains(src, "/assets/") && strings.HasSuffix(src, ".js") {
			scripts = append(scripts, src)
		}
	})
	if len(scripts) == 0 {
		return "", fmt.Errorf("no asset scripts on discover page")
	}
	if len(scripts) > scriptsToScan {
		scripts = scripts[len(scripts)-scriptsToScan:]
	}

	for _, src := range scripts {
		js, err := k.get(ctx, src)
		if err != nil {
			k.logger.Debug("asset fetch failed", "src", src, "error", err)
			continue
		}
		if m := clientIDRe.FindStringSubmatch(js); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("client id not found in %d scripts", len(scripts))
}

func (k *KeyManager) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := k.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
