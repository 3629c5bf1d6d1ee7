package extraction

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/fleetline/voice-dispatch-api/models"
)

const extractionSystemPrompt = `You extract structured data from logistics check-call transcripts.
Respond with a single JSON object using exactly these keys:
  call_outcome            one of "In-Transit Update", "Arrival Confirmation", "Emergency"
  call_summary            one or two sentences
  call_successful         boolean
  user_sentiment          "Positive", "Neutral" or "Negative"
  in_voicemail            boolean
  driver_status           e.g. "Driving", "Delayed" (empty if Emergency)
  current_location        e.g. "I-10 near Indio, CA" (empty if Emergency)
  eta                     e.g. "Tomorrow, 8:00 AM" (empty if Emergency)
  delay_reason            e.g. "Heavy Traffic", "None" (empty if Emergency)
  unloading_status        e.g. "In Door 42", "Waiting for Lumper" (only if arrived)
  pod_reminder_acknowledged boolean (only if arrived)
  emergency_type          "Accident", "Breakdown", "Medical" or "Other" (only if Emergency)
  safety_status           (only if Emergency)
  injury_status           (only if Emergency)
  emergency_location      highway and mile marker if possible (only if Emergency)
  load_secure             boolean (only if Emergency)
  escalation_status       e.g. "Connected to Human Dispatcher" (only if Emergency)
Fields that do not apply must be empty strings or false.`

// OpenAIExtractor implements Extractor against the OpenAI chat
// completions API in JSON mode.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
}

// NewOpenAIExtractor builds an extractor with the default model.
func NewOpenAIExtractor(apiKey string) *OpenAIExtractor {
	return &OpenAIExtractor{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
	}
}

// Extract prefers the platform's own analysis when it already carries
// the custom fields and only falls back to the LLM otherwise.
func (e *OpenAIExtractor) Extract(ctx context.Context, transcript string, analysis map[string]interface{}) (models.StructuredData, error) {
	if f, ok := fromAnalysis(analysis); ok {
		data, err := f.toStructured()
		if err == nil {
			return data, nil
		}
		zap.S().Warnw("platform analysis unusable, falling back to LLM", "error", err)
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	})
	if err != nil {
		return models.StructuredData{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.StructuredData{}, fmt.Errorf("chat completion returned no choices")
	}

	var f fields
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &f); err != nil {
		return models.StructuredData{}, fmt.Errorf("model returned invalid JSON: %w", err)
	}
	return f.toStructured()
}
