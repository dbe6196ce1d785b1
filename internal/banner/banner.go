// Package banner discovers the rotating home page banners in the public
// bucket.
package banner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

var extensions = []string{"png", "jpg"}

// Result lists the banners found, in slot order.
type Result struct {
	Banners []string `json:"banners"`
	// Fallback tells the UI to show its built-in banner.
	Fallback bool `json:"fallback"`
}

// Prober checks which banner slots hold an image.
type Prober struct {
	client  *http.Client
	baseURL string
	count   int
	logger  *slog.Logger
}

// NewProber builds a prober for slots 1..count under baseURL/banners/.
func NewProber(client *http.Client, baseURL string, count int, logger *slog.Logger) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if count <= 0 {
		count = 5
	}
	return &Prober{client: client, baseURL: strings.TrimRight(baseURL, "/"), count: count, logger: logger}
}

// Discover probes every slot concurrently. A slot uses its .png image if one
// exists, else its .jpg image. Failed probes are logged and skipped.
func (p *Prober) Discover(ctx context.Context) Result {
	found := make([]string, p.count)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.count)
	for i := range p.count {
		g.Go(func() error {
			for _, ext := range extensions {
				url := fmt.Sprintf("%s/banners/%d.%s", p.baseURL, i+1, ext)
				ok, err := p.exists(ctx, url)
				if err != nil {
					p.logger.Warn("banner probe failed", slog.String("url", url), slog.Any("error", err))
					return nil
				}
				if ok {
					found[i] = url
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	banners := make([]string, 0, p.count)
	for _, url := range found {
		if url != "" {
			banners = append(banners, url)
		}
	}
	return Result{Banners: banners, Fallback: len(banners) == 0}
}

func (p *Prober) exists(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// Handler serves GET /api/banners.
func (p *Prober) Handler(c *fiber.Ctx) error {
	return c.JSON(p.Discover(c.UserContext()))
}
