package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carelink/models"

	"github.com/go-resty/resty/v2"
)

// OpenAIResponder gera a resposta do bot pela Responses API.
type OpenAIResponder struct {
	httpClient   *resty.Client
	model        string
	systemPrompt string
}

func NewOpenAIResponder(baseURL, apiKey, model, systemPrompt string) *OpenAIResponder {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30*time.Second).
		SetRetryCount(1).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")

	return &OpenAIResponder{
		httpClient:   client,
		model:        model,
		systemPrompt: systemPrompt,
	}
}

type responsesInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesOutput struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// Reply monta o histórico recente + a pergunta e devolve o texto do assistente.
func (o *OpenAIResponder) Reply(ctx context.Context, contactID string, text string, history []models.Message) (string, error) {
	input := make([]responsesInput, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.SenderType != models.SENDER_PATIENT {
			role = "assistant"
		}
		if strings.TrimSpace(m.Body) == "" {
			continue
		}
		input = append(input, responsesInput{Role: role, Content: m.Body})
	}
	input = append(input, responsesInput{Role: "user", Content: text})

	var parsed responsesOutput
	resp, err := o.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"model":        o.model,
			"instructions": o.systemPrompt,
			"input":        input,
			"user":         contactID,
		}).
		SetResult(&parsed).
		Post("/responses")
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return "", fmt.Errorf("openai error %d: %s", resp.StatusCode(), resp.String())
	}

	var sb strings.Builder
	for _, item := range parsed.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" && strings.TrimSpace(c.Text) != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(c.Text)
			}
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("empty response from model (no output_text items found)")
	}
	return out, nil
}
