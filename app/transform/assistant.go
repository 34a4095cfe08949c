package transform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// AssistantBackend drives an OpenAI style assistants API: one thread per
// entry, one user message, one run, then the latest assistant message.
type AssistantBackend struct {
	client      *resty.Client
	assistantID string
}

// APIError is a non-2xx answer from the assistants API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("assistant API error: status %d: %s", e.StatusCode, e.Body)
}

func NewAssistantBackend(baseURL, apiKey, assistantID string, timeout time.Duration) *AssistantBackend {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("OpenAI-Beta", "assistants=v2")

	return &AssistantBackend{
		client:      client,
		assistantID: assistantID,
	}
}

type assistantObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type messageContent struct {
	Type string `json:"type"`
	Text struct {
		Value string `json:"value"`
	} `json:"text"`
}

type messageList struct {
	Data []struct {
		Role    string           `json:"role"`
		Content []messageContent `json:"content"`
	} `json:"data"`
}

func (b *AssistantBackend) Submit(ctx context.Context, title, content string) (Handle, error) {
	var thread assistantObject
	if err := b.post(ctx, "/threads", map[string]any{}, &thread); err != nil {
		return Handle{}, fmt.Errorf("create thread: %w", err)
	}
	if !strings.HasPrefix(thread.ID, "thread_") {
		return Handle{}, fmt.Errorf("invalid thread id %q", thread.ID)
	}

	message := map[string]any{
		"role":    "user",
		"content": fmt.Sprintf("Title: %s\nContent: %s", title, content),
	}
	if err := b.post(ctx, "/threads/"+thread.ID+"/messages", message, nil); err != nil {
		return Handle{}, fmt.Errorf("add message: %w", err)
	}

	var run assistantObject
	if err := b.post(ctx, "/threads/"+thread.ID+"/runs", map[string]any{"assistant_id": b.assistantID}, &run); err != nil {
		return Handle{}, fmt.Errorf("create run: %w", err)
	}
	if !strings.HasPrefix(run.ID, "run_") {
		return Handle{}, fmt.Errorf("invalid run id %q", run.ID)
	}

	return Handle{ThreadID: thread.ID, RunID: run.ID}, nil
}

func (b *AssistantBackend) Status(ctx context.Context, h Handle) (RunStatus, error) {
	if err := validateHandle(h); err != nil {
		return "", err
	}

	var run assistantObject
	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&run).
		Get("/threads/" + h.ThreadID + "/runs/" + h.RunID)
	if err != nil {
		return "", fmt.Errorf("retrieve run: %w", err)
	}
	if resp.IsError() {
		return "", &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	return RunStatus(run.Status), nil
}

func (b *AssistantBackend) Reply(ctx context.Context, h Handle) (string, error) {
	if err := validateHandle(h); err != nil {
		return "", err
	}

	var list messageList
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"order": "desc", "limit": "20"}).
		SetResult(&list).
		Get("/threads/" + h.ThreadID + "/messages")
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	if resp.IsError() {
		return "", &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	for _, message := range list.Data {
		if message.Role != "assistant" {
			continue
		}
		var parts []string
		for _, c := range message.Content {
			if c.Type == "text" && c.Text.Value != "" {
				parts = append(parts, c.Text.Value)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n")), nil
	}

	return "", nil
}

func (b *AssistantBackend) post(ctx context.Context, path string, body, result any) error {
	req := b.client.R().SetContext(ctx).SetBody(body)
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Post(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

func validateHandle(h Handle) error {
	if !strings.HasPrefix(h.ThreadID, "thread_") {
		return fmt.Errorf("bad thread id %q", h.ThreadID)
	}
	if !strings.HasPrefix(h.RunID, "run_") {
		return fmt.Errorf("bad run id %q", h.RunID)
	}
	return nil
}
