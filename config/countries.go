package config

import "fmt"

// URL styles understood by the request builder.
const (
	URLStyleCatalog = "catalog"
	URLStyleTag     = "tag"
)

// Country is one storefront in the registry.
type Country struct {
	Key             string `yaml:"key"`
	Name            string `yaml:"name"`
	Flag            string `yaml:"flag"`
	Domain          string `yaml:"domain"`
	URLStyle        string `yaml:"url_style"`
	SPM             string `yaml:"spm"`
	CredentialsFile string `yaml:"credentials_file"`
	Table           string `yaml:"table"`
	DataDir         string `yaml:"data_dir"`
	Currency        string `yaml:"currency"`
}

// DefaultCountries returns the Thailand, Indonesia and Malaysia storefronts
// in their run order.
func DefaultCountries() []Country {
	return []Country{
		{
			Key:             "thailand",
			Name:            "Thailand",
			Flag:            "🇹🇭",
			Domain:          "lazada.co.th",
			URLStyle:        URLStyleCatalog,
			CredentialsFile: "curl_th.txt",
			Table:           "lazada_thailand",
			DataDir:         "data/thailand",
			Currency:        "฿",
		},
		{
			Key:             "indonesia",
			Name:            "Indonesia",
			Flag:            "🇮🇩",
			Domain:          "lazada.co.id",
			URLStyle:        URLStyleTag,
			SPM:             "a2o4j.homepage.search.d_go",
			CredentialsFile: "curl_id.txt",
			Table:           "lazada_indonesia",
			DataDir:         "data/indonesia",
			Currency:        "Rp",
		},
		{
			Key:             "malaysia",
			Name:            "Malaysia",
			Flag:            "🇲🇾",
			Domain:          "lazada.com.my",
			URLStyle:        URLStyleTag,
			SPM:             "a2o4k.homepage.search.d_go",
			CredentialsFile: "curl_ml.txt",
			Table:           "lazada_malaysia",
			DataDir:         "data/malaysia",
			Currency:        "RM",
		},
	}
}

// Validate checks a single registry entry.
func (c Country) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("country key cannot be empty")
	}
	if c.Domain == "" {
		return fmt.Errorf("country %s: domain cannot be empty", c.Key)
	}
	if c.URLStyle != URLStyleCatalog && c.URLStyle != URLStyleTag {
		return fmt.Errorf("country %s: url style must be %q or %q", c.Key, URLStyleCatalog, URLStyleTag)
	}
	if c.CredentialsFile == "" {
		return fmt.Errorf("country %s: credentials file cannot be empty", c.Key)
	}
	if !identPattern.MatchString(c.Table) {
		return fmt.Errorf("country %s: table %q is not a valid identifier", c.Key, c.Table)
	}
	if c.DataDir == "" {
		return fmt.Errorf("country %s: data dir cannot be empty", c.Key)
	}
	return nil
}

// DisplayName is the flag and name used in logs and the dashboard.
func (c Country) DisplayName() string {
	if c.Name == "" {
		return c.Key
	}
	if c.Flag == "" {
		return c.Name
	}
	return c.Flag + " " + c.Name
}
