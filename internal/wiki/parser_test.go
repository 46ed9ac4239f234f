package wiki

import (
	"testing"

	"wandering-wikipedian/internal/models"
)

func TestParseArticle(t *testing.T) {
	payload := []byte(`{
  "batchcomplete": "",
  "continue": {
    "plcontinue": "1536|0|Amsterdamse_grachten",
    "continue": "||"
  },
  "query": {
    "normalized": [
      {
        "from": "albert_einstein",
        "to": "Albert Einstein"
      }
    ],
    "pages": {
      "1536": {
        "pageid": 1536,
        "ns": 0,
        "title": "Albert Einstein",
        "links": [
          {
            "ns": 0,
            "title": "Algemene relativiteitstheorie"
          },
          {
            "ns": 0,
            "title": "Annus mirabilis"
          },
          {
            "ns": 14,
            "title": "Categorie:Duits natuurkundige"
          },
          {
            "ns": 10,
            "title": "Sjabloon:Appendix"
          }
        ]
      }
    }
  }
}`)

	article, err := ParseArticle(payload)
	if err != nil {
		t.Fatalf("ParseArticle error: %v", err)
	}
	if article.Title != "Albert Einstein" {
		t.Fatalf("unexpected title: %s", article.Title)
	}
	if !article.Exists {
		t.Fatal("expected article to exist")
	}
	if article.Type != models.ArticleTypeRegular {
		t.Fatalf("unexpected type: %s", article.Type)
	}
	if article.NumLinks != 4 || len(article.Links) != 4 {
		t.Fatalf("unexpected link count: %d (%d titles)", article.NumLinks, len(article.Links))
	}
	if article.Links[0] != "Algemene relativiteitstheorie" {
		t.Fatalf("unexpected first link: %s", article.Links[0])
	}
	if article.Links[2] != "Categorie:Duits natuurkundige" {
		t.Fatalf("unexpected third link: %s", article.Links[2])
	}
}

func TestParseArticleMissing(t *testing.T) {
	payload := []byte(`{
  "batchcomplete": "",
  "query": {
    "pages": {
      "-1": {
        "ns": 0,
        "title": "Bestaat Echt Niet",
        "missing": ""
      }
    }
  }
}`)

	article, err := ParseArticle(payload)
	if err != nil {
		t.Fatalf("ParseArticle error: %v", err)
	}
	if article.Title != "Bestaat Echt Niet" {
		t.Fatalf("unexpected title: %s", article.Title)
	}
	if article.Exists {
		t.Fatal("expected missing article")
	}
	if len(article.Links) != 0 || article.NumLinks != 0 {
		t.Fatalf("missing article should have no links: %+v", article.Links)
	}
}

func TestParseArticleNamespacedTitle(t *testing.T) {
	payload := []byte(`{
  "query": {
    "pages": {
      "42": {
        "pageid": 42,
        "ns": 14,
        "title": "Categorie:Natuurkunde",
        "links": [
          {
            "ns": 0,
            "title": "Natuurkunde"
          }
        ]
      }
    }
  }
}`)

	article, err := ParseArticle(payload)
	if err != nil {
		t.Fatalf("ParseArticle error: %v", err)
	}
	if article.Type != models.ArticleTypeCategory {
		t.Fatalf("unexpected type: %s", article.Type)
	}
}

func TestParseArticleAPIError(t *testing.T) {
	payload := []byte(`{
  "error": {
    "code": "invalidtitle",
    "info": "Bad title \"\"."
  },
  "servedby": "mw1234"
}`)

	if _, err := ParseArticle(payload); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestParseArticleInvalidJSON(t *testing.T) {
	if _, err := ParseArticle([]byte(`{"query":`)); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestParseArticleEmptyPages(t *testing.T) {
	article, err := ParseArticle([]byte(`{"query":{"pages":{}}}`))
	if err != nil {
		t.Fatalf("ParseArticle error: %v", err)
	}
	if article.Title != "" || article.Exists {
		t.Fatalf("expected zero article, got %+v", article)
	}
}

func TestParseNormalizedTitle(t *testing.T) {
	payload := []byte(`{
  "query": {
    "normalized": [
      {
        "from": "albert_einstein",
        "to": "Albert Einstein"
      }
    ],
    "pages": {}
  }
}`)

	title, err := ParseNormalizedTitle(payload)
	if err != nil {
		t.Fatalf("ParseNormalizedTitle error: %v", err)
	}
	if title != "Albert Einstein" {
		t.Fatalf("unexpected title: %s", title)
	}

	title, err = ParseNormalizedTitle([]byte(`{"query":{"pages":{}}}`))
	if err != nil {
		t.Fatalf("ParseNormalizedTitle error: %v", err)
	}
	if title != "" {
		t.Fatalf("expected empty title, got %s", title)
	}
}
