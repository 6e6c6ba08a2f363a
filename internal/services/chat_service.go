package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ManideepBangaru/lumos-backend/internal/core"
	"github.com/ManideepBangaru/lumos-backend/internal/core/contextbuilder"
	"github.com/ManideepBangaru/lumos-backend/internal/models"
)

// ProgressFunc receives human-readable status updates while a turn is
// being processed, for streaming to the client.
type ProgressFunc func(stage string)

// TurnResult is the outcome of one conversation turn.
type TurnResult struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	Relevant  bool   `json:"relevant"`
	UsedImages bool  `json:"used_images"`
}

const (
	baseSystemTmpl = "You are a helpful %s assistant. Answer the user's questions clearly and " +
		"concisely. If you are unsure about something, say so rather than guessing."

	documentContextTmpl = "You are a helpful %s assistant. The user has shared documents with you. " +
		"Use the following document content to answer their questions. Cite the file and page " +
		"when it helps.\n\nDOCUMENT CONTENT:\n%s"

	multimodalIntroTmpl = "You are a helpful %s assistant. The user has shared documents containing " +
		"text and images. Review all of the following content carefully before answering."

	classifySystemTmpl = "You are a relevance filter for a %s assistant. Decide whether the user's " +
		"latest message is relevant to %s topics or to the documents they have shared. General " +
		"greetings and follow-ups to an ongoing relevant conversation count as relevant."

	classifyContextTmpl = "Shared document overview:\n%s"

	rejectionTmpl = "I'm focused on helping with %s topics and the documents you've shared. " +
		"Could you rephrase your question in that context?"
)

// ChatService runs the two-stage conversation flow: a relevance check
// against the assistant's domain, then either a grounded answer or a
// polite rejection. Resolved document images are cached per thread so
// consecutive turns don't refetch from storage.
type ChatService struct {
	db        core.DbClient
	llm       core.LLMProvider
	assembler *contextbuilder.Assembler
	domain    string

	mu          sync.Mutex
	imageCache  map[string]map[string][]models.ImagePayload
}

func NewChatService(db core.DbClient, llm core.LLMProvider, assembler *contextbuilder.Assembler, domain string) *ChatService {
	if domain == "" {
		domain = "gaming"
	}
	return &ChatService{
		db:         db,
		llm:        llm,
		assembler:  assembler,
		domain:     domain,
		imageCache: make(map[string]map[string][]models.ImagePayload),
	}
}

// Respond processes one user turn: persist the message, classify it,
// then answer with document context when available. progress may be nil.
func (s *ChatService) Respond(
	ctx context.Context,
	userID, threadID, message string,
	attachments []models.Attachment,
	progress ProgressFunc,
) (*TurnResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("empty message")
	}
	notify := func(stage string) {
		if progress != nil {
			progress(stage)
		}
	}

	human := &models.ChatMessage{
		ThreadID:    threadID,
		UserID:      userID,
		Role:        "human",
		Content:     message,
		MessageID:   uuid.NewString(),
		Attachments: attachments,
	}
	if err := s.db.AppendMessage(ctx, human); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	if err := s.db.TouchThread(ctx, threadID); err != nil {
		log.Warn().Err(err).Str("thread", threadID).Msg("touch thread failed")
	}

	history, err := s.db.GetThreadMessages(ctx, threadID, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	// First message names the thread.
	if len(history) == 1 {
		if _, err := s.db.UpdateThreadTitle(ctx, threadID, titleFromMessage(message)); err != nil {
			log.Warn().Err(err).Str("thread", threadID).Msg("title update failed")
		}
	}

	notify("loading documents")
	chunks, err := s.db.GetDocumentChunks(ctx, threadID, "")
	if err != nil {
		return nil, fmt.Errorf("load document chunks: %w", err)
	}

	notify("checking relevance")
	relevant, err := s.classify(ctx, history, chunks)
	if err != nil {
		log.Warn().Err(err).Msg("relevance check failed, assuming relevant")
		relevant = true
	}

	var content string
	usedImages := false
	if !relevant {
		content = fmt.Sprintf(rejectionTmpl, s.domain)
	} else {
		notify("thinking")
		content, usedImages, err = s.converse(ctx, threadID, history, chunks)
		if err != nil {
			return nil, err
		}
	}

	ai := &models.ChatMessage{
		ThreadID:  threadID,
		UserID:    userID,
		Role:      "ai",
		Content:   content,
		MessageID: uuid.NewString(),
	}
	if err := s.db.AppendMessage(ctx, ai); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	return &TurnResult{
		MessageID:  ai.MessageID,
		Content:    content,
		Relevant:   relevant,
		UsedImages: usedImages,
	}, nil
}

func (s *ChatService) classify(ctx context.Context, history []models.ChatMessage, chunks []models.DocumentChunk) (bool, error) {
	prompt := fmt.Sprintf(classifySystemTmpl, s.domain, s.domain)
	if len(chunks) > 0 {
		prompt += "\n\n" + fmt.Sprintf(classifyContextTmpl, contextbuilder.BuildSummaryContext(chunks))
	}
	return s.llm.Classify(ctx, prompt, history)
}

// converse generates the grounded answer. When document images exist it
// attempts the multimodal path and falls back to text-only on any failure.
func (s *ChatService) converse(ctx context.Context, threadID string, history []models.ChatMessage, chunks []models.DocumentChunk) (string, bool, error) {
	if contextbuilder.HasImages(chunks) {
		content, err := s.converseMultimodal(ctx, threadID, history, chunks)
		if err == nil {
			return content, true, nil
		}
		log.Warn().Err(err).Str("thread", threadID).Msg("multimodal generation failed, falling back to text")
	}

	systemPrompt := fmt.Sprintf(baseSystemTmpl, s.domain)
	if len(chunks) > 0 {
		systemPrompt = fmt.Sprintf(documentContextTmpl, s.domain, contextbuilder.BuildTextContext(chunks))
	}
	content, err := s.llm.Generate(ctx, systemPrompt, history)
	if err != nil {
		return "", false, fmt.Errorf("generate response: %w", err)
	}
	return content, false, nil
}

func (s *ChatService) converseMultimodal(ctx context.Context, threadID string, history []models.ChatMessage, chunks []models.DocumentChunk) (string, error) {
	s.mu.Lock()
	cached := s.imageCache[threadID]
	s.mu.Unlock()

	blocks, resolved, err := s.assembler.BuildMultimodalContext(ctx, chunks, cached)
	if err != nil {
		return "", err
	}

	intro := models.TextBlock(fmt.Sprintf(multimodalIntroTmpl, s.domain))
	blocks = append([]models.ContentBlock{intro}, blocks...)

	content, err := s.llm.GenerateMultimodal(ctx, blocks, history)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.imageCache[threadID] = resolved
	s.mu.Unlock()
	return content, nil
}

func titleFromMessage(message string) string {
	title := strings.TrimSpace(message)
	if runes := []rune(title); len(runes) > 60 {
		title = strings.TrimSpace(string(runes[:60])) + "..."
	}
	return title
}

// Rewind truncates a thread's history to its first keepCount messages,
// returning how many were removed. Documents and their cached images are
// untouched since forking only rewrites the conversation.
func (s *ChatService) Rewind(ctx context.Context, threadID string, keepCount int) (int, error) {
	removed, err := s.db.TruncateThreadMessages(ctx, threadID, keepCount)
	if err != nil {
		return 0, fmt.Errorf("truncate thread %s: %w", threadID, err)
	}
	return removed, nil
}

// InvalidateImages clears a thread's resolved image cache. Called after
// uploads or deletions change the document set.
func (s *ChatService) InvalidateImages(threadID string) {
	s.mu.Lock()
	delete(s.imageCache, threadID)
	s.mu.Unlock()
}
