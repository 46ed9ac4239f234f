package wiki

import (
	"testing"
)

func TestParseRobots_Allowed(t *testing.T) {
	// Wikipedia-style: User-agent * with Disallow /w/, /wiki/Speciaal:, etc.
	body := `
User-agent: *
Disallow: /wiki/Speciaal:
Disallow: /wiki/Overleg:
Disallow: /trap/

User-agent: Googlebot
Crawl-delay: 10
`
	r := ParseRobots([]byte(body), DefaultUserAgent)

	for _, path := range []string{"/w/api.php", "/wiki/Albert_Einstein", "/wiki/Natuurkunde"} {
		if !r.Allowed(path) {
			t.Errorf("expected path %q to be allowed", path)
		}
	}
	for _, path := range []string{"/wiki/Speciaal:Willekeurig", "/wiki/Overleg:Aarde", "/trap/", "/trap/deep"} {
		if r.Allowed(path) {
			t.Errorf("expected path %q to be disallowed", path)
		}
	}
}

func TestParseRobots_NilEmptyAllowed(t *testing.T) {
	var r *RobotsRules
	if !r.Allowed("/anything") {
		t.Error("nil rules should allow all")
	}
	empty := ParseRobots([]byte("User-agent: *\n"), DefaultUserAgent)
	if !empty.Allowed("/wiki/Speciaal:Export") {
		t.Error("empty disallow list should allow all")
	}
}

func TestParseRobots_APIDisallowed(t *testing.T) {
	body := `
User-agent: *
Disallow: /w/
`
	r := ParseRobots([]byte(body), DefaultUserAgent)
	if r.Allowed(APIPath) {
		t.Errorf("expected %q to be disallowed", APIPath)
	}
}

func TestPathFromURL(t *testing.T) {
	if got := PathFromURL("https://nl.wikipedia.org/w/api.php?action=query&titles=Aarde"); got != "/w/api.php" {
		t.Errorf("PathFromURL = %q", got)
	}
	if got := PathFromURL("https://nl.wikipedia.org/wiki/Albert_Einstein"); got != "/wiki/Albert_Einstein" {
		t.Errorf("PathFromURL = %q", got)
	}
	if got := PathFromURL(""); got != "/" {
		t.Errorf("PathFromURL empty = %q", got)
	}
}
