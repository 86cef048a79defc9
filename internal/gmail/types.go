package gmail

import (
	"context"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
)

// Format selects how much of a message GetMessage retrieves.
type Format string

const (
	FormatMinimal  Format = "minimal"
	FormatMetadata Format = "metadata"
	FormatFull     Format = "full"
	FormatRaw      Format = "raw"
)

// Valid reports whether f is one of the formats the provider accepts.
func (f Format) Valid() bool {
	switch f {
	case FormatMinimal, FormatMetadata, FormatFull, FormatRaw:
		return true
	}
	return false
}

// MessageRef is the stub the provider returns when listing messages.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
}

// MessagePage is one page of a message listing.
type MessagePage struct {
	Messages      []MessageRef `json:"messages"`
	NextPageToken string       `json:"next_page_token,omitempty"`
}

// Label is a provider label as exposed to callers.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Provider defines the verb set the pipeline needs from the mail provider.
// Implementations must be safe for concurrent use; they do not serialize
// concurrent callers, so each caller pays its own pacing delays.
type Provider interface {
	// ListMessages returns one page of message stubs matching the query.
	ListMessages(ctx context.Context, query string, maxResults int64, pageToken string) (*MessagePage, error)

	// GetMessage retrieves a single message in the requested format.
	GetMessage(ctx context.Context, id string, format Format) (*gmailapi.Message, error)

	// BatchModifyLabels adds and/or removes labels on up to batchModifyLimit
	// messages. An empty id list is a successful no-op.
	BatchModifyLabels(ctx context.Context, ids []string, addLabelIDs, removeLabelIDs []string) (int, error)

	// BatchTrash moves messages to the trash.
	BatchTrash(ctx context.Context, ids []string) (int, error)

	// BatchMarkRead marks messages read (read=true) or unread (read=false).
	BatchMarkRead(ctx context.Context, ids []string, read bool) (int, error)

	// BatchDelete permanently deletes messages. Irreversible.
	BatchDelete(ctx context.Context, ids []string) (int, error)

	// ListLabels returns every label on the account.
	ListLabels(ctx context.Context) ([]Label, error)
}

// Well-known label ids assigned by the provider itself.
const (
	LabelInbox     = "INBOX"
	LabelUnread    = "UNREAD"
	LabelStarred   = "STARRED"
	LabelSent      = "SENT"
	LabelDraft     = "DRAFT"
	LabelSpam      = "SPAM"
	LabelTrash     = "TRASH"
	LabelImportant = "IMPORTANT"
)

// IsSystemLabel reports whether name refers to a provider-defined label whose
// id equals its name. These never pass through the label cache.
func IsSystemLabel(name string) bool {
	upper := strings.ToUpper(name)
	switch upper {
	case LabelInbox, LabelUnread, LabelStarred, LabelSent,
		LabelDraft, LabelSpam, LabelTrash, LabelImportant:
		return true
	}
	return strings.HasPrefix(upper, "CATEGORY_")
}
