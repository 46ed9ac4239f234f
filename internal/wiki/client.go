package wiki

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultBaseURL is the wiki the crawler targets unless WIKI_BASE_URL overrides it.
const DefaultBaseURL = "https://nl.wikipedia.org"

// APIPath is the MediaWiki Action API endpoint path.
const APIPath = "/w/api.php"

// LinksURL builds an Action API URL that returns the outbound links of an
// article. pllimit=max requests the largest page the API will serve; the
// plcontinue token is deliberately not followed.
func LinksURL(baseURL, title string) string {
	query := url.Values{}
	query.Set("action", "query")
	query.Set("format", "json")
	query.Set("prop", "links")
	query.Set("pllimit", "max")
	query.Set("titles", title)
	return baseURL + APIPath + "?" + query.Encode()
}

// FetchJSON retrieves the raw JSON for a wiki URL using http.DefaultClient.
func FetchJSON(ctx context.Context, url string) ([]byte, error) {
	return FetchJSONWithClient(ctx, http.DefaultClient, url)
}

// FetchJSONWithClient retrieves the raw JSON for a wiki URL using the given HTTP client
// (e.g. one configured with a proxy for multi-egress / rate-limit bypass).
// Sets a custom User-Agent (DefaultUserAgent) so the site can identify the crawler.
func FetchJSONWithClient(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}
