package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/shell"
)

// Credentials is the authenticated request template for one storefront:
// browser headers and cookies that the request builder reuses for every page.
type Credentials struct {
	Headers http.Header
}

// Headers that must not be replayed: the transport negotiates its own
// encoding and computes length and host per request.
var droppedHeaders = map[string]struct{}{
	"Accept-Encoding": {},
	"Content-Length":  {},
	"Host":            {},
}

type credentialsFile struct {
	Headers map[string]string `yaml:"headers"`
	Cookie  string            `yaml:"cookie"`
}

// LoadCredentials reads a credentials file. It holds either a browser
// "copy as cURL" command or a YAML document with headers and cookie.
func LoadCredentials(path string) (*Credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: credentials file %q not found", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: credentials file %q is empty", ErrMissingConfig, path)
	}
	if strings.HasPrefix(text, "curl ") || strings.HasPrefix(text, "curl\t") {
		return ParseCurl(text)
	}

	var file credentialsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse credentials %q: %w", path, err)
	}
	creds := &Credentials{Headers: http.Header{}}
	for name, value := range file.Headers {
		creds.add(name, value)
	}
	if file.Cookie != "" {
		creds.add("Cookie", file.Cookie)
	}
	if len(creds.Headers) == 0 {
		return nil, fmt.Errorf("%w: credentials file %q has no headers", ErrMissingConfig, path)
	}
	return creds, nil
}

// emptyEnv keeps "$NAME" in a pasted command from reading the process
// environment.
func emptyEnv(string) string { return "" }

// ParseCurl extracts headers and cookies from a curl command line. The URL
// and request body are ignored; the request builder supplies its own.
func ParseCurl(command string) (*Credentials, error) {
	args, err := shell.Fields(command, emptyEnv)
	if err != nil {
		return nil, fmt.Errorf("parse curl command: %w", err)
	}
	if len(args) == 0 || args[0] != "curl" {
		return nil, fmt.Errorf("parse curl command: does not start with curl")
	}

	creds := &Credentials{Headers: http.Header{}}
	for i := 1; i < len(args); i++ {
		arg := args[i]
		next := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("parse curl command: %s needs a value", arg)
			}
			i++
			return args[i], nil
		}
		switch arg {
		case "-H", "--header":
			value, err := next()
			if err != nil {
				return nil, err
			}
			name, val, ok := strings.Cut(value, ":")
			if !ok {
				return nil, fmt.Errorf("parse curl command: malformed header %q", value)
			}
			creds.add(name, val)
		case "-b", "--cookie":
			value, err := next()
			if err != nil {
				return nil, err
			}
			creds.add("Cookie", value)
		case "-A", "--user-agent":
			value, err := next()
			if err != nil {
				return nil, err
			}
			creds.add("User-Agent", value)
		case "-e", "--referer":
			value, err := next()
			if err != nil {
				return nil, err
			}
			creds.add("Referer", value)
		case "-X", "--request", "-d", "--data", "--data-raw", "--data-binary", "--data-urlencode", "-u", "--user", "-x", "--proxy":
			if _, err := next(); err != nil {
				return nil, err
			}
		}
	}
	if len(creds.Headers) == 0 {
		return nil, fmt.Errorf("%w: curl command carries no headers", ErrMissingConfig)
	}
	return creds, nil
}

func (c *Credentials) add(name, value string) {
	name = http.CanonicalHeaderKey(strings.TrimSpace(name))
	if name == "" {
		return
	}
	if _, drop := droppedHeaders[name]; drop {
		return
	}
	c.Headers.Add(name, strings.TrimSpace(value))
}

// Clone returns a copy of the headers safe to mutate per request.
func (c *Credentials) Clone() http.Header {
	if c == nil || c.Headers == nil {
		return http.Header{}
	}
	return c.Headers.Clone()
}
