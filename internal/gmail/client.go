package gmail

import (
	"context"
	"fmt"
	"log/slog"

	gmailapi "google.golang.org/api/gmail/v1"

	"email-automation/internal/ratelimit"
)

const (
	// maxListResults is the provider's ceiling for a single list page.
	maxListResults = 500

	// batchLimit is the most ids a single batch operation accepts. Callers
	// are expected to chunk well below this (the executor uses 500).
	batchLimit = 1000
)

// Client implements Provider over the Gmail API. Every call is paced by the
// pacer (a base-delay sleep before the call and after a success) and retried
// on transient failures with exponential backoff. The client holds no
// per-call state and is safe for concurrent use.
type Client struct {
	service *gmailapi.Service
	userID  string
	pacer   *ratelimit.Pacer
	logger  *slog.Logger
}

// NewClient creates a rate-limited Gmail client for the given user. A nil
// pacer gets defaults; a nil logger falls back to slog.Default. The userID
// "me" addresses the authenticated account.
func NewClient(service *gmailapi.Service, userID string, pacer *ratelimit.Pacer, logger *slog.Logger) *Client {
	if userID == "" {
		userID = "me"
	}
	if pacer == nil {
		pacer = ratelimit.NewPacer(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		service: service,
		userID:  userID,
		pacer:   pacer,
		logger:  logger,
	}
}

// HealthCheck verifies the Gmail connection is working.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.service == nil {
		return &InvalidParameterError{Param: "client", Reason: "gmail service is not initialized"}
	}
	profile, err := c.service.Users.GetProfile(c.userID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get Gmail profile: %w", err)
	}
	c.logger.Info("connected to Gmail account", "email", profile.EmailAddress)
	return nil
}

// ListMessages returns one page of message stubs matching the query.
// maxResults outside (0, 500] is clamped to the provider ceiling.
func (c *Client) ListMessages(ctx context.Context, query string, maxResults int64, pageToken string) (*MessagePage, error) {
	if maxResults <= 0 || maxResults > maxListResults {
		maxResults = maxListResults
	}

	var resp *gmailapi.ListMessagesResponse
	err := c.call(ctx, "list_messages", "query", query, func() error {
		req := c.service.Users.Messages.List(c.userID).Q(query).MaxResults(maxResults).Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		var callErr error
		resp, callErr = req.Do()
		return callErr
	})
	if err != nil {
		return nil, err
	}

	page := &MessagePage{NextPageToken: resp.NextPageToken}
	for _, msg := range resp.Messages {
		page.Messages = append(page.Messages, MessageRef{ID: msg.Id, ThreadID: msg.ThreadId})
	}

	c.logger.Debug("listed messages", "query", query, "count", len(page.Messages), "more", page.NextPageToken != "")
	return page, nil
}

// GetMessage retrieves a single message in the requested format.
func (c *Client) GetMessage(ctx context.Context, id string, format Format) (*gmailapi.Message, error) {
	if id == "" {
		return nil, &InvalidParameterError{Param: "id", Reason: "must not be empty"}
	}
	if !format.Valid() {
		return nil, &InvalidParameterError{Param: "format", Reason: fmt.Sprintf("unknown format %q", format)}
	}

	var msg *gmailapi.Message
	err := c.call(ctx, "get_message", "message", id, func() error {
		var callErr error
		msg, callErr = c.service.Users.Messages.Get(c.userID, id).Format(string(format)).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// BatchModifyLabels adds and/or removes labels on the given messages. An
// empty id list is a successful no-op; on success every id counts as
// modified.
func (c *Client) BatchModifyLabels(ctx context.Context, ids []string, addLabelIDs, removeLabelIDs []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if len(ids) > batchLimit {
		return 0, &InvalidParameterError{Param: "ids", Reason: fmt.Sprintf("%d ids exceeds batch limit of %d", len(ids), batchLimit)}
	}
	if len(addLabelIDs) == 0 && len(removeLabelIDs) == 0 {
		return 0, &InvalidParameterError{Param: "labels", Reason: "no label changes requested"}
	}

	req := &gmailapi.BatchModifyMessagesRequest{
		Ids:            ids,
		AddLabelIds:    addLabelIDs,
		RemoveLabelIds: removeLabelIDs,
	}
	err := c.call(ctx, "batch_modify", "batch", "", func() error {
		return c.service.Users.Messages.BatchModify(c.userID, req).Context(ctx).Do()
	})
	if err != nil {
		return 0, err
	}

	c.logger.Info("modified labels", "count", len(ids), "add", addLabelIDs, "remove", removeLabelIDs)
	return len(ids), nil
}

// BatchTrash moves messages to the trash by adding the TRASH label.
func (c *Client) BatchTrash(ctx context.Context, ids []string) (int, error) {
	return c.BatchModifyLabels(ctx, ids, []string{LabelTrash}, nil)
}

// BatchMarkRead marks messages read or unread via the UNREAD label.
func (c *Client) BatchMarkRead(ctx context.Context, ids []string, read bool) (int, error) {
	if read {
		return c.BatchModifyLabels(ctx, ids, nil, []string{LabelUnread})
	}
	return c.BatchModifyLabels(ctx, ids, []string{LabelUnread}, nil)
}

// BatchDelete permanently deletes messages. There is no undo.
func (c *Client) BatchDelete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if len(ids) > batchLimit {
		return 0, &InvalidParameterError{Param: "ids", Reason: fmt.Sprintf("%d ids exceeds batch limit of %d", len(ids), batchLimit)}
	}

	req := &gmailapi.BatchDeleteMessagesRequest{Ids: ids}
	err := c.call(ctx, "batch_delete", "batch", "", func() error {
		return c.service.Users.Messages.BatchDelete(c.userID, req).Context(ctx).Do()
	})
	if err != nil {
		return 0, err
	}

	c.logger.Info("permanently deleted messages", "count", len(ids))
	return len(ids), nil
}

// ListLabels returns every label on the account.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var resp *gmailapi.ListLabelsResponse
	err := c.call(ctx, "list_labels", "labels", "", func() error {
		var callErr error
		resp, callErr = c.service.Users.Labels.List(c.userID).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, err
	}

	labels := make([]Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, Label{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

// call runs one provider operation under the pacing and retry policy: sleep
// the base delay, attempt the call, retry transient failures with backoff up
// to the retry budget, and sleep the base delay again after a success.
// Retries happen synchronously in the calling goroutine, so callers see their
// own call order preserved.
func (c *Client) call(ctx context.Context, op, resource, id string, fn func() error) error {
	if c.service == nil {
		return &InvalidParameterError{Param: "client", Reason: "gmail service is not initialized"}
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.pacer.MaxRetries(); attempt++ {
		if attempt > 0 {
			delay := c.pacer.BackoffDelay(attempt)
			c.logger.Warn("retrying provider call", "op", op, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := c.pacer.Sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			// Post-success smoothing delay. A cancellation during this
			// sleep does not fail the call that already succeeded.
			_ = c.pacer.Wait(ctx)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		classified := classifyAPIError(op, resource, id, err)
		if !IsRetryable(classified) {
			return classified
		}
		lastErr = classified
	}

	return retriesExhausted(op, c.pacer.MaxRetries()+1, lastErr)
}
