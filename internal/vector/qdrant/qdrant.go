// Package qdrant implements vector.Repository on a Qdrant server. Every
// repository owns one throwaway collection, created on first upsert and
// dropped on Close.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/efebarandurmaz/sift/internal/vector"
)

const (
	contentKey   = "content"
	dropTimeout  = 10 * time.Second
	defaultLabel = "sift"
)

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

type collectionsAPI interface {
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Repository stores documents in a private Qdrant collection.
type Repository struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	logger      *slog.Logger

	mu      sync.Mutex
	created bool
}

// New connects to Qdrant. The collection is named prefix-<uuid>.
func New(host string, port int, prefix string) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	r := newRepository(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collectionName(prefix))
	r.conn = conn
	return r, nil
}

// NewFactory adapts New to vector.RepositoryFactory.
func NewFactory(host string, port int, prefix string) vector.RepositoryFactory {
	return func(context.Context) (vector.Repository, error) {
		return New(host, port, prefix)
	}
}

func newRepository(points pointsAPI, collections collectionsAPI, collection string) *Repository {
	return &Repository{
		points:      points,
		collections: collections,
		collection:  collection,
		logger:      slog.Default(),
	}
}

func collectionName(prefix string) string {
	if prefix == "" {
		prefix = defaultLabel
	}
	return prefix + "-" + uuid.NewString()
}

// Collection returns the name of the backing collection.
func (r *Repository) Collection() string { return r.collection }

func (r *Repository) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := r.ensureCollection(ctx, len(docs[0].Vector)); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		payload := map[string]*pb.Value{
			contentKey: {Kind: &pb.Value_StringValue{StringValue: d.Content}},
		}
		for k, v := range d.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: d.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: d.Vector}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (r *Repository) Search(ctx context.Context, vec []float32, topK int) ([]vector.SearchResult, error) {
	r.mu.Lock()
	created := r.created
	r.mu.Unlock()
	if !created || topK <= 0 {
		return nil, nil
	}

	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]vector.SearchResult, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		content := ""
		meta := make(map[string]string)
		for k, v := range pt.GetPayload() {
			if k == contentKey {
				content = v.GetStringValue()
			} else {
				meta[k] = v.GetStringValue()
			}
		}
		results[i] = vector.SearchResult{
			ID:       pt.GetId().GetUuid(),
			Score:    pt.GetScore(),
			Content:  content,
			Metadata: meta,
		}
	}
	return results, nil
}

// Close drops the collection and closes the connection.
func (r *Repository) Close() error {
	var errs []error

	r.mu.Lock()
	created := r.created
	r.created = false
	r.mu.Unlock()

	if created {
		ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
		_, err := r.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: r.collection})
		cancel()
		if err != nil {
			r.logger.Warn("dropping qdrant collection failed", "collection", r.collection, "error", err)
			errs = append(errs, fmt.Errorf("qdrant drop %s: %w", r.collection, err))
		}
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}
	return errors.Join(errs...)
}

func (r *Repository) ensureCollection(ctx context.Context, dim int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.created {
		return nil
	}
	if dim == 0 {
		return fmt.Errorf("qdrant: empty embedding vector")
	}

	_, err := r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(dim), Distance: pb.Distance_Cosine},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", r.collection, err)
	}
	r.created = true
	r.logger.Debug("created qdrant collection", "collection", r.collection, "dim", dim)
	return nil
}

var _ vector.Repository = (*Repository)(nil)

// Ping checks that the Qdrant server at host:port answers a health check.
func Ping(ctx context.Context, host string, port int) error {
	conn, err := grpc.NewClient(fmt.Sprintf("%s:%d", host, port), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer conn.Close()
	if _, err := pb.NewQdrantClient(conn).HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}
