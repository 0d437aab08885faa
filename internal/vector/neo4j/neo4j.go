// Package neo4j implements vector.Repository on Neo4j 5 vector indexes. Every
// repository labels its nodes with a private label and owns one vector index
// over them; both are removed on Close.
package neo4j

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/sift/internal/vector"
)

const (
	dropTimeout      = 10 * time.Second
	awaitIndexSecs   = 300
	defaultLabelBase = "SiftChunk"
)

// Config locates the Neo4j server.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// runner executes Cypher. It is satisfied by the driver-backed implementation
// and by test fakes.
type runner interface {
	write(ctx context.Context, cypher string, params map[string]any) error
	read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	close(ctx context.Context) error
}

// Repository stores documents as labelled nodes searched through a vector
// index.
type Repository struct {
	db     runner
	label  string
	index  string
	logger *slog.Logger

	mu      sync.Mutex
	created bool
	closed  bool
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	d, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newRepository(d), nil
}

// NewFactory adapts New to vector.RepositoryFactory.
func NewFactory(cfg Config) vector.RepositoryFactory {
	return func(ctx context.Context) (vector.Repository, error) {
		return New(ctx, cfg)
	}
}

// Ping verifies that the server at cfg accepts connections.
func Ping(ctx context.Context, cfg Config) error {
	d, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	return d.close(ctx)
}

func newRepository(db runner) *Repository {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return &Repository{
		db:     db,
		label:  defaultLabelBase + "_" + id,
		index:  "sift_chunks_" + id,
		logger: slog.Default(),
	}
}

// Index returns the name of the backing vector index.
func (r *Repository) Index() string { return r.index }

func (r *Repository) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := r.ensureIndex(ctx, len(docs[0].Vector)); err != nil {
		return err
	}

	rows := make([]map[string]any, len(docs))
	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("neo4j: encode metadata of %s: %w", d.ID, err)
		}
		vec := make([]float64, len(d.Vector))
		for j, v := range d.Vector {
			vec[j] = float64(v)
		}
		rows[i] = map[string]any{"id": d.ID, "content": d.Content, "meta": string(meta), "vector": vec}
	}

	cypher := fmt.Sprintf("UNWIND $docs AS d "+
		"MERGE (c:`%s` {id: d.id}) "+
		"SET c.content = d.content, c.meta = d.meta, c.embedding = d.vector", r.label)
	if err := r.db.write(ctx, cypher, map[string]any{"docs": rows}); err != nil {
		return fmt.Errorf("neo4j upsert: %w", err)
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

	query := make([]float64, len(vec))
	for i, v := range vec {
		query[i] = float64(v)
	}
	rows, err := r.db.read(ctx,
		"CALL db.index.vector.queryNodes($index, $k, $vector) YIELD node, score "+
			"RETURN node.id AS id, node.content AS content, node.meta AS meta, score "+
			"ORDER BY score DESC",
		map[string]any{"index": r.index, "k": topK, "vector": query})
	if err != nil {
		return nil, fmt.Errorf("neo4j search: %w", err)
	}

	results := make([]vector.SearchResult, 0, len(rows))
	for _, row := range rows {
		res := vector.SearchResult{
			ID:      asString(row["id"]),
			Content: asString(row["content"]),
		}
		if score, ok := row["score"].(float64); ok {
			res.Score = float32(score)
		}
		if meta := asString(row["meta"]); meta != "" {
			if err := json.Unmarshal([]byte(meta), &res.Metadata); err != nil {
				return nil, fmt.Errorf("neo4j: decode metadata of %s: %w", res.ID, err)
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// Close deletes the nodes and the index, then closes the driver.
func (r *Repository) Close() error {
	var errs []error

	r.mu.Lock()
	created, closed := r.created, r.closed
	r.created, r.closed = false, true
	r.mu.Unlock()
	if closed {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
	defer cancel()
	if created {
		if err := r.db.write(ctx, fmt.Sprintf("MATCH (c:`%s`) DETACH DELETE c", r.label), nil); err != nil {
			errs = append(errs, fmt.Errorf("neo4j delete %s: %w", r.label, err))
		}
		if err := r.db.write(ctx, fmt.Sprintf("DROP INDEX `%s` IF EXISTS", r.index), nil); err != nil {
			errs = append(errs, fmt.Errorf("neo4j drop index %s: %w", r.index, err))
		}
		if len(errs) > 0 {
			r.logger.Warn("cleaning up neo4j index failed", "index", r.index, "error", errors.Join(errs...))
		}
	}
	if err := r.db.close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ensureIndex creates the vector index on first use and waits until it is
// online, so the first search sees every upserted node.
func (r *Repository) ensureIndex(ctx context.Context, dim int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.created {
		return nil
	}
	if dim == 0 {
		return fmt.Errorf("neo4j: empty embedding vector")
	}

	cypher := fmt.Sprintf("CREATE VECTOR INDEX `%s` IF NOT EXISTS FOR (c:`%s`) ON (c.embedding) "+
		"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
		r.index, r.label, dim)
	if err := r.db.write(ctx, cypher, nil); err != nil {
		return fmt.Errorf("neo4j create index %s: %w", r.index, err)
	}
	if err := r.db.write(ctx, "CALL db.awaitIndex($index, $timeout)", map[string]any{"index": r.index, "timeout": awaitIndexSecs}); err != nil {
		return fmt.Errorf("neo4j await index %s: %w", r.index, err)
	}
	r.created = true
	r.logger.Debug("created neo4j vector index", "index", r.index, "dim", dim)
	return nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// driverRunner runs Cypher in managed transactions.
type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func dial(ctx context.Context, cfg Config) (*driverRunner, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &driverRunner{driver: driver, database: cfg.Database}, nil
}

func (d *driverRunner) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return d.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: d.database})
}

func (d *driverRunner) write(ctx context.Context, cypher string, params map[string]any) error {
	session := d.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (d *driverRunner) read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := d.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, len(records))
		for i, rec := range records {
			rows[i] = rec.AsMap()
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]map[string]any), nil
}

func (d *driverRunner) close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

var _ vector.Repository = (*Repository)(nil)
