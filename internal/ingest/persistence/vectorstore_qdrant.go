package persistence

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// originalIDField stores the caller's chunk_id in the point payload, since
// Qdrant only accepts UUID or integer point IDs.
const originalIDField = "_chunk_id"

// qdrantVectorStore implements types.VectorStore against Qdrant, adapted
// from intelligencedev-manifold's internal/persistence/databases.qdrantVector
// (same deterministic-UUID-from-chunk_id scheme, narrowed to Upsert/Delete).
type qdrantVectorStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantVectorStore connects to Qdrant's gRPC API (default port 6334) and
// ensures collection exists with the given vector dimensions/metric
// ("cosine" | "l2" | "ip", default cosine).
func NewQdrantVectorStore(ctx context.Context, dsn, collection string, dimensions int, metric string) (types.VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("qdrant: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}
	q := &qdrantVectorStore{client: client, collection: collection}
	if err := q.ensureCollection(ctx, dimensions, metric); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *qdrantVectorStore) ensureCollection(ctx context.Context, dimensions int, metric string) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if dimensions <= 0 {
		return fmt.Errorf("qdrant: dimensions must be > 0 to create collection")
	}
	distance := qdrant.Distance_Cosine
	switch metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: distance,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection: %w", err)
	}
	return nil
}

func chunkPointID(chunkID string) (*qdrant.PointId, bool) {
	if _, err := uuid.Parse(chunkID); err == nil {
		return qdrant.NewIDUUID(chunkID), false
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()), true
}

func (q *qdrantVectorStore) Upsert(ctx context.Context, chunkID string, vector []float32, payload map[string]string) error {
	pointID, synthesized := chunkPointID(chunkID)
	values := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		values[k] = v
	}
	if synthesized {
		values[originalIDField] = chunkID
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      pointID,
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(values),
		}},
	})
	if err != nil {
		return types.Wrap(types.ErrTransientExternal, err)
	}
	return nil
}

func (q *qdrantVectorStore) Delete(ctx context.Context, chunkID string) error {
	pointID, _ := chunkPointID(chunkID)
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(pointID),
	})
	if err != nil {
		return types.Wrap(types.ErrTransientExternal, err)
	}
	return nil
}

func (q *qdrantVectorStore) Close() error { return q.client.Close() }
