package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ThurX360/WIZFUT/internal/market"
)

const defaultFutwizBaseURL = "https://www.futwiz.com/en/fc26/players"

var relativeTimeRE = regexp.MustCompile(`(?i)(\d+)\s*(second|minute|hour|day|week)s?\s*ago`)

// FutwizOptions parameterise the price-table scraper.
type FutwizOptions struct {
	BaseURL   string
	Platform  string
	Pages     int
	Timeout   time.Duration
	PageDelay time.Duration
	UserAgent string
}

// FutwizSource scrapes the Futwiz player price tables. It is a thin
// adapter: parsing stops at normalized observations and leaves statistics
// to the pipeline (std is never provided by the site).
type FutwizSource struct {
	opts    FutwizOptions
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
	baseURL string
}

// NewFutwiz constructs the scraper.
func NewFutwiz(opts FutwizOptions, logger zerolog.Logger) *FutwizSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultFutwizBaseURL
	}
	if opts.Platform == "" {
		opts.Platform = "ps"
	}
	if opts.Pages <= 0 {
		opts.Pages = 1
	}

	// Page pacing; one request burst, then at most one page per PageDelay.
	limit := rate.Inf
	if opts.PageDelay > 0 {
		limit = rate.Every(opts.PageDelay)
	}

	return &FutwizSource{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With().Str("component", "futwiz_source").Logger(),
		baseURL: baseURL,
	}
}

// Fetch walks the configured number of pages. A page failure ends
// pagination but keeps whatever was already collected; only a failure on
// the first page is reported as a fetch error.
func (s *FutwizSource) Fetch(ctx context.Context) ([]market.PriceObservation, error) {
	var observations []market.PriceObservation

	for page := 1; page <= s.opts.Pages; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return observations, err
		}

		doc, err := s.fetchPage(ctx, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			s.logger.Warn().Err(err).Int("page", page).Msg("page fetch failed, stopping pagination")
			break
		}

		rows := s.parseTable(doc)
		if len(rows) == 0 {
			break
		}
		observations = append(observations, rows...)
	}

	s.logger.Info().Int("observations", len(observations)).Msg("futwiz batch scraped")
	return observations, nil
}

func (s *FutwizSource) fetchPage(ctx context.Context, page int) (*goquery.Document, error) {
	endpoint := fmt.Sprintf("%s?%s", s.baseURL, url.Values{
		"page":     {strconv.Itoa(page)},
		"platform": {s.opts.Platform},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch futwiz page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("futwiz page %d: unexpected status %d", page, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse futwiz page %d: %w", page, err)
	}
	return doc, nil
}

func (s *FutwizSource) parseTable(doc *goquery.Document) []market.PriceObservation {
	now := time.Now().UTC()
	var rows []market.PriceObservation

	doc.Find("table tr").Each(func(_ int, tr *goquery.Selection) {
		if obs, ok := s.parseRow(tr, now); ok {
			rows = append(rows, obs)
		}
	})
	return rows
}

// parseRow extracts one listing. The tables label cells either with
// data-title attributes or with platform-specific data-price attributes;
// both shapes appear in the wild, so attributes win over cell text.
func (s *FutwizSource) parseRow(tr *goquery.Selection, now time.Time) (market.PriceObservation, bool) {
	entityID, _ := tr.Attr("data-playerid")
	if entityID == "" {
		entityID, _ = tr.Attr("data-id")
	}

	cells := tr.Find("td")
	if cells.Length() == 0 {
		return market.PriceObservation{}, false
	}

	byTitle := make(map[string]string)
	var price, avg int64
	var havePrice, haveAvg bool

	cells.Each(func(_ int, td *goquery.Selection) {
		title, ok := td.Attr("data-title")
		if !ok {
			title, ok = td.Attr("data-th")
		}
		if ok {
			byTitle[strings.ToLower(strings.TrimSpace(title))] = strings.TrimSpace(td.Text())
		}

		if !havePrice {
			raw, ok := td.Attr("data-price-" + s.opts.Platform)
			if !ok {
				raw, ok = td.Attr("data-price")
			}
			if ok {
				if v, parsed := ParseCoins(raw); parsed {
					price, havePrice = v, true
				}
			}
		}
		if !haveAvg {
			raw, ok := td.Attr("data-average")
			if !ok {
				raw, ok = td.Attr("data-avg")
			}
			if ok {
				if v, parsed := ParseCoins(raw); parsed {
					avg, haveAvg = v, true
				}
			}
		}
	})

	name := firstNonEmpty(byTitle["name"], byTitle["player"])
	if !havePrice {
		for _, key := range []string{
			"price (" + s.opts.Platform + ")",
			"bin (" + s.opts.Platform + ")",
			s.opts.Platform + " price",
			"price",
		} {
			if text, ok := byTitle[key]; ok {
				if v, parsed := ParseCoins(text); parsed {
					price, havePrice = v, true
					break
				}
			}
		}
	}
	if !haveAvg {
		if text, ok := byTitle["average"]; ok {
			avg, haveAvg = ParseCoins(text)
		} else if text, ok := byTitle["24h avg"]; ok {
			avg, haveAvg = ParseCoins(text)
		}
	}

	if entityID == "" && name != "" {
		entityID = strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	}
	if entityID == "" || !havePrice {
		return market.PriceObservation{}, false
	}

	obs := market.PriceObservation{
		EntityID:   entityID,
		Name:       name,
		League:     byTitle["league"],
		Position:   byTitle["position"],
		Price:      price,
		ObservedAt: parseUpdated(firstNonEmpty(byTitle["updated"], byTitle["last updated"]), now),
	}

	if rating, err := strconv.Atoi(strings.TrimSpace(byTitle["rating"])); err == nil {
		obs.Rating = rating
	}
	if haveAvg {
		value := float64(avg)
		obs.Avg24h = &value
	}
	// The site never publishes a std; the resolver derives it locally.

	return obs, true
}

// parseUpdated turns "12 minutes ago" style text into a timestamp relative
// to now; anything unrecognized is treated as current.
func parseUpdated(text string, now time.Time) time.Time {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" || text == "just now" || text == "now" || text == "-" {
		return now
	}

	if m := relativeTimeRE.FindStringSubmatch(text); m != nil {
		value, _ := strconv.Atoi(m[1])
		var unit time.Duration
		switch m[2] {
		case "second":
			unit = time.Second
		case "minute":
			unit = time.Minute
		case "hour":
			unit = time.Hour
		case "day":
			unit = 24 * time.Hour
		case "week":
			unit = 7 * 24 * time.Hour
		}
		return now.Add(-time.Duration(value) * unit)
	}

	if ts := parseTimestamp(text); !ts.IsZero() {
		return ts
	}
	return now
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ Source = (*FutwizSource)(nil)
