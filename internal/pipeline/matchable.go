package pipeline

import (
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"email-automation/internal/gmail"
	"email-automation/internal/rules"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// deriveMatchable flattens a raw provider message into the view the rule
// matcher evaluates. Label ids are translated back to names through the
// resolver; ids the resolver does not know pass through unchanged.
func deriveMatchable(msg *gmailapi.Message, resolver *gmail.LabelResolver) *rules.MatchableEmail {
	email := &rules.MatchableEmail{
		ID:          msg.Id,
		BodySnippet: msg.Snippet,
		SizeBytes:   msg.SizeEstimate,
	}
	if msg.InternalDate > 0 {
		email.InternalTimestamp = time.UnixMilli(msg.InternalDate)
	}

	email.Labels = make([]string, 0, len(msg.LabelIds))
	for _, id := range msg.LabelIds {
		if resolver != nil {
			email.Labels = append(email.Labels, resolver.ResolveID(id))
		} else {
			email.Labels = append(email.Labels, id)
		}
	}

	if msg.Payload == nil {
		return email
	}

	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "from":
			email.From = header.Value
		case "to":
			email.To = header.Value
		case "subject":
			email.Subject = header.Value
		}
	}

	email.Body = extractBody(msg.Payload)
	if email.Body == "" {
		email.Body = msg.Snippet
	}

	email.AttachmentFilenames = collectFilenames(msg.Payload, nil)
	email.HasAttachment = len(email.AttachmentFilenames) > 0

	return email
}

// extractBody pulls readable text out of the MIME tree, preferring text/plain
// and falling back to tag-stripped text/html.
func extractBody(payload *gmailapi.MessagePart) string {
	plain, html := extractContent(payload)
	if plain != "" {
		return plain
	}
	if html != "" {
		return htmlTagPattern.ReplaceAllString(html, " ")
	}
	return ""
}

func extractContent(payload *gmailapi.MessagePart) (plainText, htmlText string) {
	if payload.MimeType == "text/plain" && payload.Body != nil && payload.Body.Data != "" {
		plainText = decodeBody(payload.Body.Data)
	} else if payload.MimeType == "text/html" && payload.Body != nil && payload.Body.Data != "" {
		htmlText = decodeBody(payload.Body.Data)
	}

	for _, part := range payload.Parts {
		partPlain, partHTML := extractContent(part)
		if partPlain != "" && plainText == "" {
			plainText = partPlain
		}
		if partHTML != "" && htmlText == "" {
			htmlText = partHTML
		}
	}

	return plainText, htmlText
}

// decodeBody tolerates both padded and unpadded base64url, which the provider
// mixes freely.
func decodeBody(data string) string {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}

func collectFilenames(payload *gmailapi.MessagePart, filenames []string) []string {
	if payload.Filename != "" {
		filenames = append(filenames, payload.Filename)
	}
	for _, part := range payload.Parts {
		filenames = collectFilenames(part, filenames)
	}
	return filenames
}
