package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/pkg/utils"
)

// Metadata keys set on wiki documents.
const (
	MetaPageID   = "page_id"
	MetaTitle    = "title"
	MetaSpaceKey = "space_key"
	MetaURL      = "url"
)

// Confluence reads the current pages of one space through the REST API.
type Confluence struct {
	cfg     config.ConfluenceConfig
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

type pageRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type contentList struct {
	Results []pageRef `json:"results"`
}

type pageContent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
}

// NewConfluence returns a wiki source.
func NewConfluence(cfg config.ConfluenceConfig, opts ...Option) *Confluence {
	o := newOptions(opts)
	if cfg.PageSize <= 0 {
		cfg.PageSize = config.DefaultWikiPage
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = config.DefaultWikiRPS
	}
	return &Confluence{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  o.httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  o.logger,
	}
}

// Name returns "confluence".
func (c *Confluence) Name() string { return "confluence" }

// Process lists the space and converts each page to one document. A listing
// failure is an error; a page that cannot be fetched is logged and skipped.
func (c *Confluence) Process(ctx context.Context) ([]models.Document, error) {
	refs, err := c.listPages(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(refs))
	for _, ref := range refs {
		page, err := c.getPage(ctx, ref.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("failed to fetch confluence page",
				zap.String("page_id", ref.ID), zap.String("title", ref.Title), zap.Error(err))
			continue
		}
		title := page.Title
		if title == "" {
			title = ref.Title
		}
		docs = append(docs, models.NewDocument(htmlToText(page.Body.Storage.Value), map[string]any{
			MetaPageID:   ref.ID,
			MetaTitle:    title,
			MetaSpaceKey: c.cfg.SpaceKey,
			MetaURL:      c.baseURL + "/pages/" + ref.ID,
		}))
	}
	c.logger.Info("fetched confluence pages",
		zap.String("space_key", c.cfg.SpaceKey), zap.Int("listed", len(refs)), zap.Int("documents", len(docs)))
	return docs, nil
}

// listPages pages through the space until it is exhausted or MaxPages is reached.
func (c *Confluence) listPages(ctx context.Context) ([]pageRef, error) {
	var refs []pageRef
	for start := 0; ; {
		limit := c.cfg.PageSize
		if c.cfg.MaxPages > 0 {
			limit = min(limit, c.cfg.MaxPages-len(refs))
		}
		q := url.Values{}
		q.Set("spaceKey", c.cfg.SpaceKey)
		q.Set("type", "page")
		q.Set("status", "current")
		q.Set("start", strconv.Itoa(start))
		q.Set("limit", strconv.Itoa(limit))

		var list contentList
		if err := c.get(ctx, "/rest/api/content?"+q.Encode(), &list); err != nil {
			return nil, fmt.Errorf("failed to list pages of space %s: %w", c.cfg.SpaceKey, err)
		}
		refs = append(refs, list.Results...)
		if len(list.Results) < limit || (c.cfg.MaxPages > 0 && len(refs) >= c.cfg.MaxPages) {
			break
		}
		start += len(list.Results)
	}
	if c.cfg.MaxPages > 0 && len(refs) > c.cfg.MaxPages {
		refs = refs[:c.cfg.MaxPages]
	}
	return refs, nil
}

func (c *Confluence) getPage(ctx context.Context, id string) (*pageContent, error) {
	var page pageContent
	if err := c.get(ctx, "/rest/api/content/"+url.PathEscape(id)+"?expand=body.storage", &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Confluence) get(ctx context.Context, pathAndQuery string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	switch {
	case c.cfg.User != "":
		req.SetBasicAuth(c.cfg.User, c.cfg.Token)
	case c.cfg.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, utils.Truncate(strings.TrimSpace(string(body)), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
