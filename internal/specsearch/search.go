// Package specsearch fills in product characteristics from the web so the
// submitter does not have to type them.
package specsearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"shop-post-bot/internal/storage"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Extractor is the AI fallback for fields the page text did not yield.
type Extractor interface {
	ExtractSpecs(ctx context.Context, productName string, fields []string, pageText string) (map[string]string, error)
}

type Options struct {
	// SearchURL is an HTML search page taking the query in the q parameter.
	SearchURL string
	// ResultSelector picks result links on the search page.
	ResultSelector string
	Timeout        time.Duration
	Cache          Cache
	AI             Extractor
}

type Searcher struct {
	client    *http.Client
	searchURL string
	selector  string
	cache     Cache
	ai        Extractor
	logger    *zap.SugaredLogger
}

func NewSearcher(opts Options, logger *zap.SugaredLogger) *Searcher {
	if opts.ResultSelector == "" {
		opts.ResultSelector = "a.result__a"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Searcher{
		client:    &http.Client{Timeout: opts.Timeout},
		searchURL: opts.SearchURL,
		selector:  opts.ResultSelector,
		cache:     opts.Cache,
		ai:        opts.AI,
		logger:    logger,
	}
}

// Lookup returns what could be found for the category's fields. An empty
// map is a normal result; failures are logged and never returned.
func (s *Searcher) Lookup(ctx context.Context, productName string, category *storage.Category) map[string]string {
	productName = strings.TrimSpace(productName)
	if productName == "" || category == nil || len(category.SpecFields) == 0 {
		return map[string]string{}
	}

	key := cacheKey(category.ID, productName)
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warnf("Spec cache read failed for %q: %v", productName, err)
		} else if ok {
			return cached
		}
	}

	text := s.scrape(ctx, productName)
	specs := extractSpecs(text, category.SpecFields)

	if missing := missingFields(category.SpecFields, specs); len(missing) > 0 && s.ai != nil {
		found, err := s.ai.ExtractSpecs(ctx, productName, missing, text)
		if err != nil {
			s.logger.Warnf("AI spec extraction failed for %q: %v", productName, err)
		}
		for k, v := range found {
			specs[k] = v
		}
	}

	specs = restrict(specs, category.SpecFields)
	s.logger.Infof("Spec lookup for %q (%s): %d of %d fields found", productName, category.Name, len(specs), len(category.SpecFields))

	if s.cache != nil && len(specs) > 0 {
		if err := s.cache.Set(ctx, key, specs); err != nil {
			s.logger.Warnf("Spec cache write failed for %q: %v", productName, err)
		}
	}
	return specs
}

// scrape returns the readable text of the first search result followed by
// the search page's own text, whichever parts could be fetched.
func (s *Searcher) scrape(ctx context.Context, productName string) string {
	if s.searchURL == "" {
		return ""
	}
	results, snippets, err := s.search(ctx, productName+" характеристики")
	if err != nil {
		s.logger.Warnf("Spec search failed for %q: %v", productName, err)
		return ""
	}

	for _, link := range results {
		page, err := s.readPage(ctx, link)
		if err != nil {
			s.logger.Debugf("Could not read result page %s: %v", link, err)
			continue
		}
		return page + "\n" + snippets
	}
	return snippets
}

func (s *Searcher) search(ctx context.Context, query string) ([]string, string, error) {
	base, err := url.Parse(s.searchURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid search url: %w", err)
	}
	q := base.Query()
	q.Set("q", query)
	base.RawQuery = q.Encode()

	res, err := s.get(ctx, base.String())
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, "", err
	}

	var links []string
	doc.Find(s.selector).Each(func(i int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if link := resultTarget(base.ResolveReference(u)); link != "" {
			links = append(links, link)
		}
	})
	return links, doc.Find("body").Text(), nil
}

// resultTarget unwraps search-engine redirect links.
func resultTarget(u *url.URL) string {
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func (s *Searcher) readPage(ctx context.Context, link string) (string, error) {
	pageURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("failed to parse link: %w", err)
	}
	res, err := s.get(ctx, link)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	article, err := readability.FromReader(res.Body, pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to process with readability: %w", err)
	}
	return article.TextContent, nil
}

func (s *Searcher) get(ctx context.Context, link string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, fmt.Errorf("failed to fetch page: status code %d", res.StatusCode)
	}
	return res, nil
}

func missingFields(fields []string, found map[string]string) []string {
	var missing []string
	for _, f := range fields {
		if _, ok := found[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

func restrict(specs map[string]string, fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v := strings.TrimSpace(specs[f]); v != "" {
			out[f] = v
		}
	}
	return out
}
