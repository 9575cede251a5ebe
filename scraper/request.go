package scraper

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-lazada/config"
)

// PageParams are the per-page inputs to a storefront request.
type PageParams struct {
	Query        string
	Page         int
	FirstRequest bool
}

// RequestDescriptor is a fully formed request ready for the transport.
type RequestDescriptor struct {
	Method  string
	URL     string
	Headers http.Header
}

// BuildRequest builds the catalog request for one page of a query, reusing
// the credential headers.
func BuildRequest(country config.Country, creds *config.Credentials, p PageParams) (RequestDescriptor, error) {
	if strings.TrimSpace(p.Query) == "" {
		return RequestDescriptor{}, fmt.Errorf("build request: empty query")
	}
	if p.Page < 1 {
		return RequestDescriptor{}, fmt.Errorf("build request: page must be >= 1, got %d", p.Page)
	}

	values := url.Values{}
	values.Set("ajax", "true")
	values.Set("isFirstRequest", strconv.FormatBool(p.FirstRequest))
	values.Set("page", strconv.Itoa(p.Page))
	values.Set("q", p.Query)

	u := url.URL{Scheme: "https", Host: "www." + country.Domain}
	switch country.URLStyle {
	case config.URLStyleCatalog:
		u.Path = "/catalog/"
		values.Set("from", "hp_categories")
		values.Set("service", "all_channel")
		values.Set("src", "all_channel")
	case config.URLStyleTag:
		u.Path = "/tag/" + TagSlug(p.Query) + "/"
		values.Set("catalog_redirect_tag", "true")
		if country.SPM != "" {
			values.Set("spm", country.SPM)
		}
	default:
		return RequestDescriptor{}, fmt.Errorf("build request: unknown url style %q for %s", country.URLStyle, country.Key)
	}
	u.RawQuery = values.Encode()

	return RequestDescriptor{
		Method:  http.MethodGet,
		URL:     u.String(),
		Headers: creds.Clone(),
	}, nil
}

// TagSlug turns a query into the path segment used by tag style storefronts.
func TagSlug(query string) string {
	slug := strings.ToLower(query)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "&", "and")
	return strings.ReplaceAll(slug, ",", "")
}
