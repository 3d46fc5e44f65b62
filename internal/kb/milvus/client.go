package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

// Store is the vector collection holding rescue-knowledge chunks. A single
// instance is created at process start and shared by all requests; all calls
// are stateless reads/writes against the Milvus server.
type Store struct {
	client         client.Client
	collectionName string
	vectorDim      int
	log            *zap.Logger
}

// Chunk is one embedded knowledge-base fragment.
type Chunk struct {
	ID        string
	Embedding []float32
	Text      string
	Source    string
	Species   string
	Urgency   string
	Timestamp time.Time
}

// Hit is a search result with its raw vector distance.
type Hit struct {
	ChunkID string
	Text    string
	Source  string
	Species string
	Urgency string
	Score   float32
}

func NewStore(endpoint, apiKey, collectionName string, vectorDim int, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	cfg := client.Config{Address: endpoint}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	c, err := client.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	log.Info("Milvus store initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Store{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
		log:            log,
	}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) EnsureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		s.log.Info("Collection already exists", zap.String("collection", s.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collectionName,
		Description:    "Animal rescue knowledge base embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", s.vectorDim)},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			},
			{
				Name:       "source",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "species",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "urgency",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "16"},
			},
			{
				Name:     "timestamp",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	if err := s.client.CreateIndex(ctx, s.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := s.client.LoadCollection(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	s.log.Info("Collection created and loaded", zap.String("collection", s.collectionName))

	return nil
}

func (s *Store) Insert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	texts := make([]string, len(chunks))
	sources := make([]string, len(chunks))
	species := make([]string, len(chunks))
	urgencies := make([]string, len(chunks))
	timestamps := make([]int64, len(chunks))

	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ID
		embeddings[i] = chunk.Embedding
		texts[i] = chunk.Text
		sources[i] = chunk.Source
		species[i] = chunk.Species
		urgencies[i] = chunk.Urgency
		timestamps[i] = chunk.Timestamp.Unix()
	}

	_, err := s.client.Insert(
		ctx,
		s.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", s.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("source", sources),
		entity.NewColumnVarChar("species", species),
		entity.NewColumnVarChar("urgency", urgencies),
		entity.NewColumnInt64("timestamp", timestamps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := s.client.Flush(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	s.log.Info("Chunks inserted into vector store", zap.Int("count", len(chunks)))

	return nil
}

func (s *Store) Search(ctx context.Context, queryEmbedding []float32, topK int, speciesFilter string) ([]Hit, error) {
	expr := ""
	if speciesFilter != "" {
		expr = fmt.Sprintf(`species == "%s"`, speciesFilter)
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := s.client.Search(
		ctx,
		s.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "text", "source", "species", "urgency"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]Hit, 0)
	for _, sr := range searchResult {
		chunkIDCol := sr.Fields.GetColumn("chunk_id")
		textCol := sr.Fields.GetColumn("text")
		sourceCol := sr.Fields.GetColumn("source")
		speciesCol := sr.Fields.GetColumn("species")
		urgencyCol := sr.Fields.GetColumn("urgency")

		for i := 0; i < sr.ResultCount; i++ {
			chunkID, _ := chunkIDCol.GetAsString(i)
			text, _ := textCol.GetAsString(i)
			source, _ := sourceCol.GetAsString(i)
			sp, _ := speciesCol.GetAsString(i)
			urgency, _ := urgencyCol.GetAsString(i)

			hits = append(hits, Hit{
				ChunkID: chunkID,
				Text:    text,
				Source:  source,
				Species: sp,
				Urgency: urgency,
				Score:   sr.Scores[i],
			})
		}
	}

	s.log.Debug("Vector search completed",
		zap.Int("top_k", topK),
		zap.Int("hits", len(hits)),
		zap.String("filter", expr),
	)

	return hits, nil
}
