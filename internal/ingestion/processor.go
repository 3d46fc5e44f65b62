// Package ingestion turns raw HTML care guides into embedded knowledge-base
// chunks.
package ingestion

import (
	"context"
	"crypto/md5"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/rescue-agent/backend/internal/kb/milvus"
	"github.com/rescue-agent/backend/internal/llm"
	"github.com/rescue-agent/backend/internal/storage/models"
	"github.com/rescue-agent/backend/internal/storage/sqlite"
	"github.com/rescue-agent/backend/pkg/logger"
)

type Processor struct {
	db           *sqlite.Client
	store        *milvus.Store
	llmClient    *llm.Client
	chunkSize    int
	chunkOverlap int
}

func NewProcessor(db *sqlite.Client, store *milvus.Store, llmClient *llm.Client) *Processor {
	return &Processor{
		db:           db,
		store:        store,
		llmClient:    llmClient,
		chunkSize:    1000,
		chunkOverlap: 1,
	}
}

// ProcessDocument cleans the HTML, chunks the text on sentence boundaries,
// embeds the chunks and writes them to both stores.
func (p *Processor) ProcessDocument(ctx context.Context, url, htmlContent string) error {
	logger.Info("Processing document", zap.String("url", url))

	cleanedText := p.cleanHTML(htmlContent)
	if cleanedText == "" {
		return fmt.Errorf("no content extracted from HTML")
	}

	species := p.extractSpecies(url, cleanedText)
	docType := p.extractDocType(url)

	summary, err := p.summarize(ctx, cleanedText)
	if err != nil {
		logger.Warn("Failed to summarize document", zap.Error(err))
		summary = "Summary unavailable"
	}

	docID := generateID(url)
	doc := &models.Document{
		ID:         docID,
		URL:        url,
		Title:      p.extractTitle(htmlContent),
		Species:    species,
		DocType:    docType,
		Summary:    summary,
		RawContent: cleanedText,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := p.db.InsertDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	chunks := p.chunkText(cleanedText)
	logger.Info("Document chunked", zap.Int("chunks", len(chunks)))

	embeddings, err := p.llmClient.GenerateBatchEmbeddings(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	vectorChunks := make([]milvus.Chunk, 0, len(chunks))
	for i, chunkText := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", docID, i)
		vectorChunks = append(vectorChunks, milvus.Chunk{
			ID:        chunkID,
			Embedding: embeddings[i],
			Text:      chunkText,
			Source:    url,
			Species:   species,
			Urgency:   docType,
			Timestamp: time.Now(),
		})

		dbChunk := &models.DocumentChunk{
			ID:          chunkID,
			DocID:       docID,
			ChunkIndex:  i,
			Text:        chunkText,
			EmbeddingID: chunkID,
			CreatedAt:   time.Now(),
		}
		if err := p.db.InsertChunk(ctx, dbChunk); err != nil {
			logger.Warn("Failed to insert chunk record", zap.String("chunk_id", chunkID), zap.Error(err))
		}
	}

	if len(vectorChunks) > 0 {
		if err := p.store.Insert(ctx, vectorChunks); err != nil {
			return fmt.Errorf("failed to insert into vector store: %w", err)
		}
	}

	logger.Info("Document processed successfully",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(vectorChunks)),
	)

	return nil
}

func (p *Processor) summarize(ctx context.Context, text string) (string, error) {
	if len(text) > 4000 {
		text = text[:4000]
	}

	resp, err := p.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "Summarize the following animal care document in 2-3 sentences. Focus on which animals and conditions it covers.",
		UserPrompt:   text,
		Temperature:  0.1,
		MaxTokens:    200,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp), nil
}

func (p *Processor) cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()

	text = regexp.MustCompile(`\s+`).ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return text
}

func (p *Processor) extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "Untitled"
	}

	title := doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}
	if title == "" {
		title = "Untitled"
	}

	return strings.TrimSpace(title)
}

func (p *Processor) extractSpecies(url, text string) string {
	speciesKeys := []string{"cat", "dog", "bird", "rabbit", "hamster", "turtle"}

	lowerURL := strings.ToLower(url)
	for _, key := range speciesKeys {
		if strings.Contains(lowerURL, key) {
			return key
		}
	}

	// Fall back to the dominant species mention in the opening text.
	sample := strings.ToLower(text)
	if len(sample) > 1000 {
		sample = sample[:1000]
	}
	best, bestCount := "", 0
	for _, key := range speciesKeys {
		if count := strings.Count(sample, key); count > bestCount {
			best, bestCount = key, count
		}
	}
	if best != "" {
		return best
	}

	return "general"
}

func (p *Processor) extractDocType(url string) string {
	lowerURL := strings.ToLower(url)

	if strings.Contains(lowerURL, "emergency") || strings.Contains(lowerURL, "first-aid") {
		return "emergency"
	}
	if strings.Contains(lowerURL, "guide") {
		return "guide"
	}
	if strings.Contains(lowerURL, "faq") {
		return "faq"
	}

	return "documentation"
}

// chunkText splits on sentence boundaries, packing sentences into
// chunkSize-character windows with a small sentence overlap so context
// survives the cut.
func (p *Processor) chunkText(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		logger.Warn("Sentence segmentation failed, using whole text", zap.Error(err))
		return []string{text}
	}

	sentences := doc.Sentences()
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentSize := 0

	for _, s := range sentences {
		sentence := strings.TrimSpace(s.Text)
		if sentence == "" {
			continue
		}

		if currentSize+len(sentence) > p.chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			overlapStart := len(current) - p.chunkOverlap
			if overlapStart < 0 {
				overlapStart = 0
			}
			current = append([]string(nil), current[overlapStart:]...)
			currentSize = 0
			for _, kept := range current {
				currentSize += len(kept) + 1
			}
		}

		current = append(current, sentence)
		currentSize += len(sentence) + 1
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

func generateID(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}
