package parser

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-lazada/models"
)

// ChallengeSentinel appears in the ret status list when the storefront wants
// the user to solve a CAPTCHA.
const ChallengeSentinel = "FAIL_SYS_USER_VALIDATE"

const maxDetailLen = 120

// Classify turns one raw response into a FetchResult. transportErr is the
// failure reported by the transport, nil when the request completed.
//
// The checks run in a fixed order: an HTML body is reported as Blocked before
// any JSON parsing is attempted.
func Classify(body string, transportErr error) models.FetchResult {
	if transportErr != nil {
		return models.FetchResult{Kind: models.FetchTransportError, Reason: transportErr.Error()}
	}

	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return models.FetchResult{Kind: models.FetchEmpty}
	}
	if strings.HasPrefix(trimmed, "<") {
		return models.FetchResult{Kind: models.FetchBlocked, Detail: describeBlockPage(trimmed)}
	}

	var payload models.ListingPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return models.FetchResult{Kind: models.FetchTransportError, Reason: "parse error: " + err.Error()}
	}
	if IsChallenge(payload.Ret) {
		return models.FetchResult{Kind: models.FetchChallenge, Detail: string(payload.Ret)}
	}
	return models.FetchResult{Kind: models.FetchSuccess, Payload: &payload}
}

// IsChallenge reports whether ret is a list whose text contains the
// challenge sentinel.
func IsChallenge(ret json.RawMessage) bool {
	ret = bytes.TrimSpace(ret)
	if len(ret) == 0 || ret[0] != '[' {
		return false
	}
	return bytes.Contains(ret, []byte(ChallengeSentinel))
}

// describeBlockPage returns the page title of an HTML block page, falling
// back to the first visible text.
func describeBlockPage(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(doc.Find("title").First().Text())
	if text == "" {
		text = strings.TrimSpace(doc.Find("body").First().Text())
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxDetailLen {
		text = text[:maxDetailLen]
	}
	return text
}
