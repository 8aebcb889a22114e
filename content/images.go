package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultUnsplashBase = "https://api.unsplash.com"
	defaultPexelsBase   = "https://api.pexels.com"
	userAgent           = "campusnews/1.0"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Unsplash searches a random landscape photo matching the tags.
type Unsplash struct {
	AccessKey string
	BaseURL   string
	Client    *http.Client
}

func (u *Unsplash) Name() string    { return "unsplash" }
func (u *Unsplash) Available() bool { return strings.TrimSpace(u.AccessKey) != "" }

func (u *Unsplash) Image(ctx context.Context, title string, tags []string) (string, error) {
	keywords := title
	if len(tags) > 0 {
		keywords = strings.Join(tags, ",")
	}
	q := url.Values{}
	q.Set("query", keywords)
	q.Set("orientation", "landscape")
	q.Set("content_filter", "high")
	endpoint := strings.TrimSuffix(orDefault(u.BaseURL, defaultUnsplashBase), "/") + "/photos/random?" + q.Encode()

	var body struct {
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	}
	if err := getJSON(ctx, u.Client, endpoint, "Client-ID "+u.AccessKey, &body); err != nil {
		return "", err
	}
	if body.URLs.Regular == "" {
		return "", errors.New("unsplash: response has no regular url")
	}
	return body.URLs.Regular, nil
}

// Pexels searches a landscape photo matching the tags, picking one of the
// first five result pages at random.
type Pexels struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func (p *Pexels) Name() string    { return "pexels" }
func (p *Pexels) Available() bool { return strings.TrimSpace(p.APIKey) != "" }

func (p *Pexels) Image(ctx context.Context, title string, tags []string) (string, error) {
	keywords := "education university"
	if len(tags) > 0 {
		keywords = strings.Join(tags, " ")
	}
	q := url.Values{}
	q.Set("query", keywords)
	q.Set("per_page", "1")
	q.Set("page", strconv.Itoa(rand.Intn(5)+1))
	q.Set("orientation", "landscape")
	endpoint := strings.TrimSuffix(orDefault(p.BaseURL, defaultPexelsBase), "/") + "/v1/search?" + q.Encode()

	var body struct {
		Photos []struct {
			Src struct {
				Large2x string `json:"large2x"`
			} `json:"src"`
		} `json:"photos"`
	}
	if err := getJSON(ctx, p.Client, endpoint, p.APIKey, &body); err != nil {
		return "", err
	}
	if len(body.Photos) == 0 || body.Photos[0].Src.Large2x == "" {
		return "", errors.New("pexels: no photos in response")
	}
	return body.Photos[0].Src.Large2x, nil
}

// Picsum is the terminal strategy: no credentials, no network call, and a
// URL that depends only on the title and the clock.
type Picsum struct {
	now func() time.Time
}

// NewPicsum builds the default image strategy.
func NewPicsum(now func() time.Time) *Picsum {
	if now == nil {
		now = time.Now
	}
	return &Picsum{now: now}
}

func (p *Picsum) Name() string    { return "picsum" }
func (p *Picsum) Available() bool { return true }

func (p *Picsum) Image(_ context.Context, title string, _ []string) (string, error) {
	seed := whitespaceRun.ReplaceAllString(title+strconv.FormatInt(p.now().UnixMilli(), 10), "-")
	return fmt.Sprintf("https://picsum.photos/seed/%s/1600/900", url.PathEscape(seed)), nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint, authorization string, out any) error {
	if client == nil {
		client = httpClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
