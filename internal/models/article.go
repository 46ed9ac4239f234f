package models

import "strings"

// ArticleType classifies a Wikipedia page by its namespace prefix.
type ArticleType string

const (
	ArticleTypeRegular   ArticleType = "regular"
	ArticleTypeWikipedia ArticleType = "wikipedia"
	ArticleTypeTemplate  ArticleType = "template"
	ArticleTypeCategory  ArticleType = "category"
	ArticleTypePortal    ArticleType = "portal"
	ArticleTypeTalk      ArticleType = "talk"
)

// namespacePrefixes maps the source wiki's namespace prefixes to article types.
// The crawl targets the Dutch Wikipedia, hence the Dutch namespace names.
var namespacePrefixes = map[string]ArticleType{
	"Wikipedia":        ArticleTypeWikipedia,
	"Sjabloon":         ArticleTypeTemplate,
	"Categorie":        ArticleTypeCategory,
	"Portaal":          ArticleTypePortal,
	"Overleg sjabloon": ArticleTypeTalk,
	"Overleg":          ArticleTypeTalk,
}

// ClassifyTitle returns the ArticleType for a page title. Only the namespace
// prefix before the first colon is considered, so a regular article that merely
// mentions a namespace word is not misclassified.
func ClassifyTitle(title string) ArticleType {
	prefix, _, found := strings.Cut(title, ":")
	if !found {
		return ArticleTypeRegular
	}
	if articleType, ok := namespacePrefixes[prefix]; ok {
		return articleType
	}
	return ArticleTypeRegular
}

// Article represents a Wikipedia page and its outbound links.
type Article struct {
	Title    string      `json:"title"`
	Exists   bool        `json:"exists"`
	Type     ArticleType `json:"type,omitempty"`
	Links    []string    `json:"links,omitempty"`
	NumLinks int         `json:"num_links"`
	RawJSON  []byte      `json:"-"`
}

// ID returns the graph identity of the article (its canonical title).
func (a Article) ID() string {
	return a.Title
}

// URLTitle converts the title to its URL form (spaces become underscores).
func (a Article) URLTitle() string {
	return strings.ReplaceAll(a.Title, " ", "_")
}
