package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/patternguard/console/internal/models"
)

// VerifyEmailMessage is shown when an identity has an unverified email.
const VerifyEmailMessage = "Please verify your email before continuing."

// ListFeedback returns every stored feedback entry. The backend has
// answered with a bare array, a page object ({content: [...]}) and an
// {items: [...]} wrapper over time; all three are accepted, and a lone
// object becomes a one-element list.
func (c *Client) ListFeedback(ctx context.Context) ([]models.FeedbackRecord, error) {
	const op = "list feedback"

	hc, err := c.authorized(op)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/feedback/admin/get", nil)
	if err != nil {
		return nil, newTransportError(op, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.sendAuthorized(op, hc, req)
	if err != nil {
		return nil, err
	}
	if !res.ok() {
		return nil, newResponseError(op, res.status, res.body,
			fmt.Sprintf("Failed to fetch feedback data: %d %s", res.status, http.StatusText(res.status)))
	}

	records, coerced, err := decodeFeedback(res.body)
	if err != nil {
		return nil, c.malformed(op, req, err)
	}
	if coerced {
		c.log.Warn(module, "feedback response was not a list, wrapped it", map[string]interface{}{
			"request_id": req.Header.Get(HeaderRequestID),
		})
	}
	return records, nil
}

// decodeFeedback unwraps content/items and decodes the list. coerced is
// true when a non-array value was wrapped.
func decodeFeedback(body []byte) (records []models.FeedbackRecord, coerced bool, err error) {
	raw := bytes.TrimSpace(body)
	if len(raw) == 0 {
		return nil, false, errors.New("empty feedback response")
	}

	if raw[0] == '{' {
		var wrapper struct {
			Content json.RawMessage `json:"content"`
			Items   json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, false, err
		}
		switch {
		case present(wrapper.Content):
			raw = bytes.TrimSpace(wrapper.Content)
		case present(wrapper.Items):
			raw = bytes.TrimSpace(wrapper.Items)
		}
	}

	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, false, err
		}
		if records == nil {
			records = []models.FeedbackRecord{}
		}
		return records, false, nil
	case '{':
		var rec models.FeedbackRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, false, err
		}
		return []models.FeedbackRecord{rec}, true, nil
	default:
		var text models.FlexString
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, false, err
		}
		return []models.FeedbackRecord{{Message: text}}, true, nil
	}
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// SubmitFeedback posts a feedback report authorized by the reporter's
// identity token and returns the stored entry. The admin session is not
// involved.
func (c *Client) SubmitFeedback(ctx context.Context, id *Identity, sub models.FeedbackSubmission) (*models.FeedbackRecord, error) {
	const op = "submit feedback"

	if id == nil || id.Token == "" {
		return nil, newValidationError(op, "Sign in with your Google account first.", nil)
	}
	if !id.EmailVerified {
		return nil, newValidationError(op, VerifyEmailMessage, nil)
	}
	if err := c.validate.Struct(sub); err != nil {
		return nil, newValidationError(op, validationMessage(err, map[string]string{
			"URL":     "A valid page URL is required",
			"Issue":   "Issue must be one of false-positive, false-negative, suggestion, feedback, other",
			"Message": "Message is required",
		}), err)
	}

	payload, err := json.Marshal(sub)
	if err != nil {
		return nil, newValidationError(op, "Could not encode feedback", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/feedback/add", bytes.NewReader(payload))
	if err != nil {
		return nil, newTransportError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.send(op, c.withBearer(id.Token), req)
	if err != nil {
		return nil, err
	}
	if !res.ok() {
		return nil, &Error{
			Kind:    KindResponse,
			Op:      op,
			Status:  res.status,
			Message: fmt.Sprintf("Submission failed with status: %d", res.status),
			Err:     fmt.Errorf("backend said: %s", bytes.TrimSpace(res.body)),
		}
	}

	var rec models.FeedbackRecord
	if err := json.Unmarshal(res.body, &rec); err != nil {
		return nil, c.malformed(op, req, err)
	}

	c.log.Info(module, "feedback submitted", map[string]interface{}{
		"id":    rec.ID.String(),
		"issue": string(sub.Issue),
		"mail":  id.Email,
	})
	return &rec, nil
}
