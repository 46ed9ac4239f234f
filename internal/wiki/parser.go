package wiki

import (
	"encoding/json"
	"fmt"

	"wandering-wikipedian/internal/models"
)

// ParseArticle parses a MediaWiki query/links response into an Article.
// The canonical title comes from the pages map, so a request for
// "albert_einstein" yields "Albert Einstein". A page carrying the "missing"
// member is returned with Exists=false and no links. An API error member
// becomes a Go error.
func ParseArticle(body []byte) (models.Article, error) {
	type pageLink struct {
		Ns    int    `json:"ns"`
		Title string `json:"title"`
	}
	type page struct {
		PageID  int             `json:"pageid"`
		Ns      int             `json:"ns"`
		Title   string          `json:"title"`
		Missing json.RawMessage `json:"missing"`
		Invalid json.RawMessage `json:"invalid"`
		Links   []pageLink      `json:"links"`
	}
	type response struct {
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
		Query struct {
			Pages map[string]page `json:"pages"`
		} `json:"query"`
	}

	var payload response
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Article{}, err
	}
	if payload.Error != nil {
		return models.Article{}, fmt.Errorf("api error %s: %s", payload.Error.Code, payload.Error.Info)
	}

	// titles= carried one title, so the pages map holds at most one entry.
	for _, p := range payload.Query.Pages {
		if p.Title == "" {
			continue
		}
		article := models.Article{
			Title:   p.Title,
			Type:    models.ClassifyTitle(p.Title),
			RawJSON: body,
		}
		if p.Missing != nil || p.Invalid != nil {
			return article, nil
		}
		article.Exists = true
		for _, link := range p.Links {
			if link.Title == "" {
				continue
			}
			article.Links = append(article.Links, link.Title)
		}
		article.NumLinks = len(article.Links)
		return article, nil
	}

	return models.Article{}, nil
}

// ParseNormalizedTitle returns the canonical form the API normalized the
// requested title to, or "" when no normalization happened.
func ParseNormalizedTitle(body []byte) (string, error) {
	var payload struct {
		Query struct {
			Normalized []struct {
				From string `json:"from"`
				To   string `json:"to"`
			} `json:"normalized"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	for _, n := range payload.Query.Normalized {
		if n.To != "" {
			return n.To, nil
		}
	}
	return "", nil
}
