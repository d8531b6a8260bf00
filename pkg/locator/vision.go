package locator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/devicelab-dev/qa-runner/pkg/core"
	"github.com/devicelab-dev/qa-runner/pkg/logger"
)

// DefaultVisionModel is used when no model is configured.
const DefaultVisionModel = "gemini-2.5-flash"

const visionPrompt = `You are a mobile UI locator.

You will be given:
1) A screenshot of an Android app
2) A target element description (what the user wants to tap)
3) Optional hint text (extra context)

Return the best tap point (x, y) in screen pixel coordinates for the target element.

Rules:
- Output ONLY valid JSON. No extra text.
- If you cannot find the target, output {"found": false, "reason": "..."}.
- If you can find it, output:
  {"found": true, "x": <int>, "y": <int>, "confidence": 0.0-1.0, "reason": "<short>"}`

// Generator is the slice of the genai Models service the vision locator uses.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Vision locates targets by asking a multimodal model about a screenshot.
type Vision struct {
	gen   Generator
	model string
}

// NewVision creates a vision locator backed by the Gemini API.
func NewVision(ctx context.Context, apiKey, model string) (*Vision, error) {
	if apiKey == "" {
		return nil, errors.New("vision locator requires an API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return NewVisionWithGenerator(client.Models, model), nil
}

// NewVisionWithGenerator creates a vision locator over an existing generator.
func NewVisionWithGenerator(gen Generator, model string) *Vision {
	if model == "" {
		model = DefaultVisionModel
	}
	return &Vision{gen: gen, model: model}
}

// Name returns the strategy name.
func (v *Vision) Name() string { return StrategyVision }

// visionReply is the JSON object the model is asked to produce.
type visionReply struct {
	Found      bool     `json:"found"`
	X          *int     `json:"x"`
	Y          *int     `json:"y"`
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
}

// Locate sends the current screen plus target and hint to the model.
func (v *Vision) Locate(ctx context.Context, src Source, target, hint string) core.LocatorResult {
	png, err := src.Screen(ctx)
	if err != nil {
		return core.NotLocated(core.LocateSnapshotUnavailable, fmt.Sprintf("screenshot unavailable: %v", err))
	}

	prompt := fmt.Sprintf("TARGET: %s\n", target)
	if hint != "" {
		prompt += fmt.Sprintf("HINT: %s\n", hint)
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{MIMEType: core.ContentTypePNG, Data: png}},
		},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: visionPrompt}}},
		Temperature:       genai.Ptr[float32](0),
		ResponseMIMEType:  "application/json",
	}

	resp, err := v.gen.GenerateContent(ctx, v.model, contents, config)
	if err != nil {
		logger.Warn("vision locate %q failed: %v", target, err)
		return core.NotLocated(core.LocateError, fmt.Sprintf("vision model request failed: %v", err))
	}

	raw := responseText(resp)
	result := parseVisionReply(raw, target)
	if result.Metadata == nil {
		result.Metadata = map[string]string{}
	}
	result.Metadata["model"] = v.model
	result.Metadata["reply"] = raw
	return result
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func parseVisionReply(raw, target string) core.LocatorResult {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var reply visionReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return core.NotLocated(core.LocateError, fmt.Sprintf("model did not return valid JSON: %v", err))
	}

	if !reply.Found {
		reason := reply.Reason
		if reason == "" {
			reason = fmt.Sprintf("target %q not found by vision model", target)
		}
		return core.NotLocated(core.LocateNotFound, reason)
	}
	if reply.X == nil || reply.Y == nil || *reply.X < 0 || *reply.Y < 0 {
		return core.NotLocated(core.LocateError, "model reported found without valid coordinates")
	}

	r := core.FoundAt(*reply.X, *reply.Y, core.MatchVisionModel, reply.Reason)
	if reply.Confidence != nil {
		r.Metadata = map[string]string{"confidence": fmt.Sprintf("%.2f", *reply.Confidence)}
	}
	return r
}
