package pipeline

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/llmgw/llmgateway/internal/canon"
)

// upstreamPath builds the provider-specific path §4.6/§6.2 describe,
// already bound to the resolved model. Bedrock's concrete endpoint is the
// InvokeModel surface (not Converse): internal/translate's Bedrock codec
// produces the Anthropic-shaped body InvokeModel expects, matching
// Converse would require a different wire shape entirely — recorded as an
// Open Question resolution.
func upstreamPath(family canon.Family, model string, stream bool) string {
	switch family {
	case canon.FamilyOpenAI:
		return "/v1/chat/completions"
	case canon.FamilyAnthropic:
		return "/v1/messages"
	case canon.FamilyGemini:
		action := "generateContent"
		if stream {
			action = "streamGenerateContent"
		}
		return fmt.Sprintf("/v1beta/models/%s:%s", url.PathEscape(model), action)
	case canon.FamilyBedrock:
		if stream {
			return fmt.Sprintf("/model/%s/invoke-with-response-stream", url.PathEscape(model))
		}
		return fmt.Sprintf("/model/%s/invoke", url.PathEscape(model))
	case canon.FamilyResponses:
		return "/v1/responses"
	default:
		return "/"
	}
}

// upstreamURL joins baseURL and path by string concatenation rather than
// url.JoinPath — Gemini's path contains a literal ':' action separator
// (".../models/gemini-pro:generateContent") that path-segment joining would
// percent-encode.
func upstreamURL(baseURL, path, rawQuery string) (string, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return "", err
	}
	if rawQuery != "" {
		if base.RawQuery != "" {
			base.RawQuery += "&" + rawQuery
		} else {
			base.RawQuery = rawQuery
		}
	}
	return base.String(), nil
}

// gemStreamQuery appends Gemini's required alt=sse query parameter for the
// streaming action (§6.2).
func gemStreamQuery(stream bool) string {
	if stream {
		return "alt=sse"
	}
	return ""
}
