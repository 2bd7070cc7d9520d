package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/samsaffron/pulse/internal/config"
	"github.com/samsaffron/pulse/internal/tags"
)

// Serper queries google.serper.dev.
type Serper struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter

	infoLimit  int
	imageLimit int
	videoLimit int
}

// NewSerper builds a client from cfg. It returns nil when no API key is
// configured.
func NewSerper(cfg config.SearchConfig) *Serper {
	if !cfg.Enabled() {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Serper{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		infoLimit:  orDefault(cfg.InfoLimit, 50),
		imageLimit: orDefault(cfg.ImageLimit, 10),
		videoLimit: orDefault(cfg.VideoLimit, 5),
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

type serperResponse struct {
	Organic []Organic `json:"organic"`
	Images  []struct {
		ImageURL string `json:"imageUrl"`
	} `json:"images"`
	Videos []struct {
		Link string `json:"link"`
	} `json:"videos"`
}

func endpoint(kind tags.Kind) (string, error) {
	switch kind {
	case tags.KindInfo:
		return "search", nil
	case tags.KindImages:
		return "images", nil
	case tags.KindVideos:
		return "videos", nil
	}
	return "", fmt.Errorf("unknown search kind %q", kind)
}

// Query runs one search. Results are capped per kind.
func (s *Serper) Query(ctx context.Context, kind tags.Kind, q string) (Results, error) {
	res := Results{Kind: kind, Query: q}
	path, err := endpoint(kind)
	if err != nil {
		return res, err
	}
	if strings.TrimSpace(q) == "" {
		return res, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return res, err
	}

	body, err := json.Marshal(map[string]string{"q": q})
	if err != nil {
		return res, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+path, bytes.NewReader(body))
	if err != nil {
		return res, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return res, fmt.Errorf("serper %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return res, fmt.Errorf("serper %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var data serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return res, fmt.Errorf("serper %s: decode: %w", path, err)
	}

	switch kind {
	case tags.KindInfo:
		res.Organic = data.Organic
		if len(res.Organic) > s.infoLimit {
			res.Organic = res.Organic[:s.infoLimit]
		}
	case tags.KindImages:
		for _, img := range data.Images {
			if img.ImageURL == "" {
				continue
			}
			res.ImageURLs = append(res.ImageURLs, img.ImageURL)
			if len(res.ImageURLs) == s.imageLimit {
				break
			}
		}
	case tags.KindVideos:
		for _, v := range data.Videos {
			if v.Link == "" {
				continue
			}
			res.VideoLinks = append(res.VideoLinks, v.Link)
			if len(res.VideoLinks) == s.videoLimit {
				break
			}
		}
	}
	return res, nil
}
