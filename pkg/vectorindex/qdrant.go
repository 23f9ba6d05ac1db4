package vectorindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the remote Qdrant backend.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

func (c *QdrantConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
}

// qdrantIndex is the alternate remote ANN backend (§6(d)), for
// deployments that want a shared, out-of-process index. Grounded on
// pkg/vector/qdrant.go: cosine-distance collection creation, PointStruct
// upserts, and SearchPoints.
type qdrantIndex struct {
	client     *qdrant.Client
	collection string
}

func newQdrantIndex(ctx context.Context, cfg QdrantConfig, collection string, dimension int) (*qdrantIndex, error) {
	cfg.SetDefaults()
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: create qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: check qdrant collection: %w", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("vectorindex: create qdrant collection: %w", err)
		}
	}

	return &qdrantIndex{client: client, collection: collection}, nil
}

func (q *qdrantIndex) Add(ctx context.Context, id string, vector []float32) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id),
		Vectors: qdrant.NewVectors(vector...),
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: qdrant upsert: %w", err)
	}
	return nil
}

func (q *qdrantIndex) Remove(ctx context.Context, id string) error {
	err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{qdrant.NewID(id)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: qdrant delete %s: %w", id, err)
	}
	return nil
}

func (q *qdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	searchResult, err := q.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: qdrant search: %w", err)
	}
	matches := make([]Match, 0, len(searchResult.Result))
	for _, p := range searchResult.Result {
		matches = append(matches, Match{ID: p.Id.GetUuid(), Score: float64(p.Score)})
	}
	return matches, nil
}

func (q *qdrantIndex) Len() int {
	count, err := q.client.GetPointsClient().Count(context.Background(), &qdrant.CountPoints{CollectionName: q.collection})
	if err != nil || count == nil {
		return 0
	}
	return int(count.GetResult().GetCount())
}
