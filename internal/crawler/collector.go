package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/models"
	"bekendmakingen/internal/state"
)

// listingDepth is the number of listing levels below a repository root
// (year, expression) that are walked before item links are expected.
const listingDepth = 2

var errTargetReached = errors.New("target count reached")

// CollectSummary reports the outcome of one collection run.
type CollectSummary struct {
	Sources       map[string]int
	Start         int
	Added         int
	Total         int
	FailedPages   int
	TargetReached bool
}

// Collector walks FRBR repository listings and gathers item links.
type Collector struct {
	getter    Getter
	cfg       *config.Config
	log       *logger.Logger
	summary   *CollectSummary
	list      *state.URLList
	listPath  string
	sinceSave int
}

// NewCollector creates a collector that saves progress to listPath.
// An empty listPath disables intermediate saves.
func NewCollector(getter Getter, cfg *config.Config, listPath string, log *logger.Logger) *Collector {
	if log == nil {
		log = logger.NewNop()
	}

	return &Collector{
		getter:   getter,
		cfg:      cfg,
		log:      log,
		listPath: listPath,
	}
}

// Collect adds new item links from every enabled source to list until the
// configured target count is reached. URLs already in list are not re-added.
func (c *Collector) Collect(ctx context.Context, list *state.URLList) (CollectSummary, error) {
	summary := CollectSummary{
		Sources: make(map[string]int),
		Start:   list.Len(),
	}
	c.summary = &summary
	c.list = list
	c.sinceSave = 0

	target := c.cfg.Collector.TargetCount

	if list.Len() >= target {
		c.log.Info("target already reached", "count", list.Len(), "target", target)

		summary.Total = list.Len()
		summary.TargetReached = true

		return summary, nil
	}

	c.log.Info("starting collection", "count", list.Len(), "target", target)

	for _, src := range c.cfg.GetEnabledSources() {
		log := c.log.With("source", src.Label)
		log.Info("crawling repository", "root", src.URL)

		err := c.walk(ctx, src, src.URL, 0, log)
		if errors.Is(err, errTargetReached) {
			summary.TargetReached = true

			break
		}

		if err != nil {
			summary.Total = list.Len()

			if saveErr := c.save(); saveErr != nil {
				log.Error("failed to save progress", "error", saveErr)
			}

			return summary, err
		}
	}

	summary.Total = list.Len()

	if err := c.save(); err != nil {
		return summary, err
	}

	c.log.Info("finished collecting urls", "added", summary.Added, "total", summary.Total)

	return summary, nil
}

func (c *Collector) walk(ctx context.Context, src config.SourceConfig, pageURL string, depth int, log *logger.Logger) error {
	links, err := c.listing(ctx, pageURL, log)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.summary.FailedPages++
		log.Warn("skipping listing", "url", pageURL, "error", err)

		return nil
	}

	prefix := strings.TrimSuffix(stripQuery(pageURL), "/") + "/"

	for _, link := range links {
		if IsItemLink(link) {
			if err := c.add(models.URLItem{URL: link, Source: src.Label}, log); err != nil {
				return err
			}

			continue
		}

		if depth >= listingDepth || !strings.HasPrefix(link, prefix) {
			continue
		}

		if err := c.walk(ctx, src, link, depth+1, log); err != nil {
			return err
		}
	}

	return nil
}

// listing fetches a listing page and follows ?start=N pagination while
// full pages keep producing new links.
func (c *Collector) listing(ctx context.Context, pageURL string, log *logger.Logger) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listing url %q: %w", pageURL, err)
	}

	pageSize := c.cfg.Collector.PageSize
	maxPages := c.cfg.Collector.MaxPages

	if maxPages < 1 {
		maxPages = 1
	}

	seen := make(map[string]struct{})

	var all []string

	for page := 0; page < maxPages; page++ {
		target := pageURL
		if page > 0 {
			target = withStart(base, page*pageSize)
		}

		body, err := c.getter.Fetch(ctx, target)
		if err != nil {
			if page == 0 {
				return nil, err
			}

			log.Warn("stopping pagination", "url", target, "error", err)

			break
		}

		links, err := FindLinks(body, base, c.cfg.AllowedDomains)
		if err != nil {
			return nil, err
		}

		newFound := 0

		for _, link := range links {
			if _, ok := seen[link]; ok {
				continue
			}

			seen[link] = struct{}{}
			all = append(all, link)
			newFound++
		}

		if pageSize < 1 || newFound == 0 || len(links) < pageSize {
			break
		}
	}

	return all, nil
}

func (c *Collector) add(item models.URLItem, log *logger.Logger) error {
	if !c.list.Add(item) {
		return nil
	}

	c.summary.Added++
	c.summary.Sources[item.Source]++
	c.sinceSave++

	log.Debug("found item", "url", item.URL)

	if every := c.cfg.Collector.SaveEvery; every > 0 && c.sinceSave >= every {
		log.Info("progress", "count", c.list.Len(), "target", c.cfg.Collector.TargetCount)

		if err := c.save(); err != nil {
			return err
		}
	}

	if c.list.Len() >= c.cfg.Collector.TargetCount {
		return errTargetReached
	}

	return nil
}

func (c *Collector) save() error {
	c.sinceSave = 0

	if c.listPath == "" {
		return nil
	}

	if err := c.list.Save(c.listPath); err != nil {
		return fmt.Errorf("failed to save url list: %w", err)
	}

	return nil
}

func withStart(base *url.URL, start int) string {
	u := *base
	q := u.Query()
	q.Set("start", fmt.Sprint(start))
	u.RawQuery = q.Encode()

	return u.String()
}

func stripQuery(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}

	return raw
}
