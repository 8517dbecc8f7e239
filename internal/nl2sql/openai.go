package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAITranslator calls an OpenAI-compatible chat completions endpoint.
type OpenAITranslator struct {
	client      *resty.Client
	model       string
	temperature float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &OpenAITranslator{client: client, model: model, temperature: cfg.Temperature}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	payload, err := buildChatRequest(t.model, t.temperature, req)
	if err != nil {
		return Result{}, err
	}

	var parsed chatResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&parsed).
		Post("/v1/chat/completions")
	if err != nil {
		return Result{}, fmt.Errorf("request chat completion: %w", err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode(), resp.String())
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("empty chat completion choices")
	}

	sql := stripMarkdownSQL(parsed.Choices[0].Message.Content)
	if sql == "" {
		return Result{}, fmt.Errorf("model returned empty SQL")
	}
	return Result{SQL: sql, Provider: "openai-compatible", Model: t.model}, nil
}

func buildChatRequest(model string, temperature float64, req Request) (chatRequest, error) {
	datasetsJSON, err := json.Marshal(req.Datasets)
	if err != nil {
		return chatRequest{}, fmt.Errorf("marshal dataset context: %w", err)
	}
	dialect := string(req.Dialect)
	if dialect == "" {
		dialect = "postgres"
	}
	systemPrompt := fmt.Sprintf("You convert natural language analytics requests into a single %s SQL query. ", dialect) +
		"Return ONLY SQL. No markdown, no explanation."
	userPrompt := fmt.Sprintf(
		"Organization: %s\nDatasets with columns and sample rows (JSON):\n%s\n\nUser request:\n%s\n\nRules:\n- Use only listed datasets.\n- Prefer explicit columns.\n- Never modify data.\n- Output a single SQL query only.",
		req.OrganizationID,
		string(datasetsJSON),
		strings.TrimSpace(req.NaturalLanguage),
	)
	return chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
	}, nil
}

// DatasetFromResult turns a preview result into prompt context.
func DatasetFromResult(name string, rs value.ResultSet) DatasetContext {
	out := DatasetContext{Name: name, Columns: append([]string(nil), rs.Columns...), SampleRows: make([][]any, 0, len(rs.Rows))}
	for _, row := range rs.Rows {
		cells := make([]any, len(rs.Columns))
		for i, column := range rs.Columns {
			if v, ok := row.Get(column); ok {
				cells[i] = v.Plain()
			}
		}
		out.SampleRows = append(out.SampleRows, cells)
	}
	return out
}

func stripMarkdownSQL(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 && !strings.ContainsAny(trimmed[:newline], " \t") {
		trimmed = trimmed[newline+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
