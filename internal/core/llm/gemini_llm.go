package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ManideepBangaru/lumos-backend/internal/core"
	"github.com/ManideepBangaru/lumos-backend/internal/models"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

var _ core.LLMProvider = (*GeminiLLM)(nil)

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// historyToContents maps stored chat roles onto the Gemini wire roles.
// Empty messages are dropped since the API rejects empty parts.
func historyToContents(history []models.ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := "user"
		if m.Role == "ai" {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return out
}

func collectText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt string, history []models.ChatMessage) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("gemini generate: empty history")
	}

	m := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	contents := historyToContents(history)
	if len(contents) == 0 {
		return "", fmt.Errorf("gemini generate: no non-empty messages")
	}
	last := contents[len(contents)-1]

	cs := m.StartChat()
	cs.History = contents[:len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return collectText(resp), nil
}

// Classify asks the model for a structured yes/no relevance verdict using
// a constrained JSON response schema.
func (g *GeminiLLM) Classify(ctx context.Context, systemPrompt string, history []models.ChatMessage) (bool, error) {
	if len(history) == 0 {
		return false, fmt.Errorf("gemini classify: empty history")
	}

	m := g.client.GenerativeModel(g.modelName)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"relevant": {Type: genai.TypeBoolean},
		},
		Required: []string{"relevant"},
	}

	contents := historyToContents(history)
	if len(contents) == 0 {
		return false, fmt.Errorf("gemini classify: no non-empty messages")
	}
	last := contents[len(contents)-1]

	cs := m.StartChat()
	cs.History = contents[:len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return false, fmt.Errorf("gemini classify: %w", err)
	}

	var verdict struct {
		Relevant bool `json:"relevant"`
	}
	if err := json.Unmarshal([]byte(collectText(resp)), &verdict); err != nil {
		return false, fmt.Errorf("gemini classify: decode verdict: %w", err)
	}
	return verdict.Relevant, nil
}

// GenerateMultimodal sends the assembled document blocks as the opening
// user turn, a short model acknowledgement, then the live conversation.
// The acknowledgement keeps the history alternating so the document
// context is not conflated with the user's actual question.
func (g *GeminiLLM) GenerateMultimodal(ctx context.Context, blocks []models.ContentBlock, history []models.ChatMessage) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("gemini multimodal: empty history")
	}

	parts, err := blocksToParts(blocks)
	if err != nil {
		return "", fmt.Errorf("gemini multimodal: %w", err)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("gemini multimodal: no content blocks")
	}

	contents := historyToContents(history)
	if len(contents) == 0 {
		return "", fmt.Errorf("gemini multimodal: no non-empty messages")
	}
	last := contents[len(contents)-1]

	m := g.client.GenerativeModel(g.modelName)

	cs := m.StartChat()
	cs.History = append([]*genai.Content{
		{Role: "user", Parts: parts},
		{Role: "model", Parts: []genai.Part{
			genai.Text("I've reviewed the document content and images. How can I help you with this material?"),
		}},
	}, contents[:len(contents)-1]...)

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini multimodal: %w", err)
	}
	return collectText(resp), nil
}

func blocksToParts(blocks []models.ContentBlock) ([]genai.Part, error) {
	parts := make([]genai.Part, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case models.BlockText:
			if b.Text == "" {
				continue
			}
			parts = append(parts, genai.Text(b.Text))
		case models.BlockImage:
			format, data, err := decodeDataURL(b.ImageURL)
			if err != nil {
				return nil, err
			}
			parts = append(parts, genai.ImageData(format, data))
		default:
			return nil, fmt.Errorf("unknown block kind %q", b.Kind)
		}
	}
	return parts, nil
}

// decodeDataURL splits a "data:image/png;base64,..." URL into the Gemini
// image format name and raw bytes.
func decodeDataURL(url string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url")
	}
	mt := strings.TrimSuffix(meta, ";base64")
	if !strings.HasPrefix(mt, "image/") {
		return "", nil, fmt.Errorf("unsupported media type %q", mt)
	}
	format := strings.TrimPrefix(mt, "image/")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode base64: %w", err)
	}
	return format, data, nil
}
