package extractor

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/TwooSix/Alist-MikananiRss-sub000/config"
)

// geminiProvider Google Gemini 的 generateContent 接口
type geminiProvider struct {
	http           *resty.Client
	apiKey         string
	model          string
	responseFormat string
}

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

func newGeminiProvider(cfg config.LLMConfig) *geminiProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &geminiProvider{
		http:           resty.New().SetBaseURL(baseURL),
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		responseFormat: cfg.ResponseFormat,
	}
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *geminiProvider) Complete(ctx context.Context, system, user string, schema map[string]any) (string, error) {
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: user}}},
		},
	}
	if schema != nil {
		req.GenerationConfig = &geminiGenConfig{ResponseMimeType: "application/json"}
		if p.responseFormat == "json_schema" {
			req.GenerationConfig.ResponseSchema = geminiSchema(schema)
		}
	}

	var resp geminiResponse
	_, err := p.http.R().SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(fmt.Sprintf("/models/%s:generateContent", p.model))
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("gemini completion: code=%d message=%s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &MalformedResponseError{Raw: "", Reason: "no candidates returned"}
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// geminiSchema Gemini 的 schema 方言不接受 additionalProperties
func geminiSchema(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		if k == "additionalProperties" {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = geminiSchema(nested)
			continue
		}
		out[k] = v
	}
	return out
}
