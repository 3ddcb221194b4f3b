// Package navigation maps search results to documentation pages.
package navigation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/conky/docsearch/internal/indexing"
)

// Page is a documentation page that hosts entries of one kind
type Page string

const (
	PageConfigSettings Page = "config_settings"
	PageVariables      Page = "variables"
	PageLua            Page = "lua"
)

// Request asks the UI to show Anchor on Page
type Request struct {
	Page   Page   `json:"page"`
	Anchor string `json:"anchor"`
}

// Path renders the site-relative location, e.g. "/variables#cpu"
func (r Request) Path() string {
	return "/" + string(r.Page) + "#" + r.Anchor
}

// URL joins the request with the site's base URL
func (r Request) URL(baseURL string) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	u := base.JoinPath(string(r.Page))
	u.Fragment = r.Anchor
	return u.String(), nil
}

// PageFor returns the page hosting entries of kind
func PageFor(kind indexing.Kind) (Page, error) {
	switch kind {
	case indexing.KindConfig:
		return PageConfigSettings, nil
	case indexing.KindVar:
		return PageVariables, nil
	case indexing.KindLua:
		return PageLua, nil
	}
	return "", fmt.Errorf("%w: %q", indexing.ErrUnknownKind, string(kind))
}

// Resolve maps a record to its navigation request. The anchor is the
// record name.
func Resolve(rec indexing.DocRecord) (Request, error) {
	page, err := PageFor(rec.Kind)
	if err != nil {
		return Request{}, fmt.Errorf("cannot navigate to %q: %w", rec.Name, err)
	}
	return Request{Page: page, Anchor: rec.Name}, nil
}
