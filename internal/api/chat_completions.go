package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/kiln-llm/kiln/internal/inference"
	"github.com/kiln-llm/kiln/internal/tokenizer"
)

// ChatCompletionRequest represents an OpenAI-compatible chat completion request.
type ChatCompletionRequest struct {
	Model               string        `json:"model"`
	Messages            []ChatMessage `json:"messages"`
	Temperature         *float64      `json:"temperature,omitempty"`
	TopP                *float64      `json:"top_p,omitempty"`
	TopK                *int          `json:"top_k,omitempty"`
	Stream              *bool         `json:"stream,omitempty"`
	MaxTokens           *int          `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int          `json:"max_completion_tokens,omitempty"`
	Seed                *int64        `json:"seed,omitempty"`
	User                string        `json:"user,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ChatCompletionResponse is the response for non-streaming chat completions.
type ChatCompletionResponse struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"`
	Created           int64        `json:"created"`
	Model             string       `json:"model"`
	Choices           []ChatChoice `json:"choices"`
	Usage             ChatUsage    `json:"usage"`
	SystemFingerprint string       `json:"system_fingerprint,omitempty"`
}

type ChatChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk is a streaming SSE chunk.
type ChatCompletionChunk struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"`
	Created           int64        `json:"created"`
	Model             string       `json:"model"`
	Choices           []ChatChoice `json:"choices"`
	SystemFingerprint string       `json:"system_fingerprint,omitempty"`
}

func (s *Server) handleChatCompletions(c *echo.Context) error {
	if s.engine == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "no model loaded", "", "")
	}

	req, err := decodeJSON[ChatCompletionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	if len(req.Messages) == 0 {
		return writeBadRequest(c, "messages is required and must not be empty")
	}

	msgs, err := chatMessagesToTokenizerMessages(req.Messages)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	isStream := req.Stream != nil && *req.Stream
	completionID := "chatcmpl-" + uuid.NewString()
	created := s.clock().Unix()
	model := req.Model
	if model == "" {
		model = s.modelID
	}

	if isStream {
		return s.handleChatCompletionsStream(c, req, msgs, completionID, created, model)
	}

	return s.handleChatCompletionsSync(c, req, msgs, completionID, created, model)
}

func (s *Server) handleChatCompletionsSync(c *echo.Context, req ChatCompletionRequest, msgs []tokenizer.Message, completionID string, created int64, model string) error {
	inferReq := chatToInferenceRequest(&req, msgs)
	result, err := s.engine.Generate(c.Request().Context(), &inferReq, nil)
	if err != nil {
		s.log.Error("chat completion failed", "id", completionID, "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	s.log.Info("chat completion",
		"id", completionID,
		"prompt_tokens", result.Stats.PromptTokens,
		"completion_tokens", result.Stats.TokensGenerated,
		"tps", result.Stats.TPS)

	finishReason := "stop"
	resp := ChatCompletionResponse{
		ID:                completionID,
		Object:            "chat.completion",
		Created:           created,
		Model:             model,
		SystemFingerprint: s.fingerprint,
		Choices: []ChatChoice{
			{
				Index: 0,
				Message: &ChatMessage{
					Role:    "assistant",
					Content: result.Text,
				},
				FinishReason: &finishReason,
			},
		},
		Usage: ChatUsage{
			PromptTokens:     result.Stats.PromptTokens,
			CompletionTokens: result.Stats.TokensGenerated,
			TotalTokens:      result.Stats.PromptTokens + result.Stats.TokensGenerated,
		},
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleChatCompletionsStream(c *echo.Context, req ChatCompletionRequest, msgs []tokenizer.Message, completionID string, created int64, model string) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return writeBadRequest(c, "streaming unsupported")
	}

	// Opening chunk carries the assistant role only.
	initialChunk := ChatCompletionChunk{
		ID:                completionID,
		Object:            "chat.completion.chunk",
		Created:           created,
		Model:             model,
		SystemFingerprint: s.fingerprint,
		Choices: []ChatChoice{
			{
				Index: 0,
				Delta: &ChatMessage{Role: "assistant"},
			},
		},
	}
	if err := sendSSEChunk(res, initialChunk); err != nil {
		return err
	}
	flusher.Flush()

	inferReq := chatToInferenceRequest(&req, msgs)
	_, err := s.engine.Generate(c.Request().Context(), &inferReq, func(tok string) {
		chunk := ChatCompletionChunk{
			ID:      completionID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []ChatChoice{
				{
					Index: 0,
					Delta: &ChatMessage{Content: tok},
				},
			},
		}
		_ = sendSSEChunk(res, chunk)
		flusher.Flush()
	})
	if err != nil {
		// Headers are already out, so report the failure in-stream.
		s.log.Error("chat completion stream failed", "id", completionID, "error", err)
		_ = sendSSEChunk(res, map[string]any{"error": err.Error()})
		flusher.Flush()
	}

	finishReason := "stop"
	finalChunk := ChatCompletionChunk{
		ID:      completionID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []ChatChoice{
			{
				Index:        0,
				Delta:        &ChatMessage{},
				FinishReason: &finishReason,
			},
		},
	}
	_ = sendSSEChunk(res, finalChunk)
	_, _ = fmt.Fprint(res, "data: [DONE]\n\n")
	flusher.Flush()

	return nil
}

func sendSSEChunk(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", string(b))
	return err
}

func chatMessagesToTokenizerMessages(msgs []ChatMessage) ([]tokenizer.Message, error) {
	out := make([]tokenizer.Message, 0, len(msgs))
	for _, m := range msgs {
		msg := tokenizer.Message{Role: m.Role}

		switch content := m.Content.(type) {
		case string:
			msg.Content = content
		case nil:
			msg.Content = ""
		case []any:
			// Multi-part content; only text parts are supported.
			var text string
			for _, part := range content {
				pm, ok := part.(map[string]any)
				if !ok {
					continue
				}
				if typ, _ := pm["type"].(string); typ == "text" {
					if t, ok := pm["text"].(string); ok {
						if text != "" {
							text += "\n"
						}
						text += t
					}
				}
			}
			msg.Content = text
		default:
			return nil, fmt.Errorf("message content: unsupported type")
		}

		out = append(out, msg)
	}
	return out, nil
}

func chatToInferenceRequest(req *ChatCompletionRequest, msgs []tokenizer.Message) inference.Request {
	out := inference.Request{Messages: msgs}

	maxToks := req.MaxTokens
	if req.MaxCompletionTokens != nil {
		maxToks = req.MaxCompletionTokens
	}
	if maxToks != nil {
		out.MaxTokens = *maxToks
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		out.TopP = *req.TopP
	}
	if req.TopK != nil {
		out.TopK = *req.TopK
	}
	if req.Seed != nil {
		out.Seed = *req.Seed
	}
	return out
}
