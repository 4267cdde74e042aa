package store

import (
	"context"
	"errors"
	"fmt"

	"deepresearch.app/orchestrator/internal/domain"
	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
)

// ErrFindingsNotFound is returned when a run has no findings document.
var ErrFindingsNotFound = errors.New("findings document not found")

// RunDocument is the ArangoDB document holding a completed run's full
// findings/summaries blob, written once at the end of a run. The append-only,
// variably-shaped Finding/Summary sequences suit a flexible-schema document
// store better than a relational table would.
type RunDocument struct {
	Key       string           `json:"_key"`
	Topic     string           `json:"topic"`
	Findings  []domain.Finding `json:"findings"`
	Summaries []string         `json:"summaries"`
	Analysis  string           `json:"analysis"`
}

// FindingsStore is the ArangoDB-backed document store for a single findings
// collection keyed by run ID.
type FindingsStore struct {
	db         arangodb.Database
	collection string
}

// NewFindingsStore connects to ArangoDB and ensures the research_findings
// collection exists.
func NewFindingsStore(ctx context.Context, endpoints []string, user, password, database string) (*FindingsStore, error) {
	endpoint := connection.NewRoundRobinEndpoints(endpoints)
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))

	if err := conn.SetAuthentication(connection.NewBasicAuth(user, password)); err != nil {
		return nil, fmt.Errorf("arangodb auth: %w", err)
	}

	client := arangodb.NewClient(conn)

	exists, err := client.DatabaseExists(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("check database exists: %w", err)
	}
	if !exists {
		if _, err := client.CreateDatabase(ctx, database, nil); err != nil {
			return nil, fmt.Errorf("create database: %w", err)
		}
	}

	db, err := client.GetDatabase(ctx, database, nil)
	if err != nil {
		return nil, fmt.Errorf("get database: %w", err)
	}

	const collection = "research_findings"
	collExists, err := db.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("check collection exists: %w", err)
	}
	if !collExists {
		if _, err := db.CreateCollectionV2(ctx, collection, &arangodb.CreateCollectionPropertiesV2{}); err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}
	}

	return &FindingsStore{db: db, collection: collection}, nil
}

// SaveRun writes a completed run's findings/summaries blob, keyed by run ID.
// Written once at the end of a run; never updated.
func (s *FindingsStore) SaveRun(ctx context.Context, runID, topic string, result domain.Result, summaries []string) error {
	col, err := s.db.GetCollection(ctx, s.collection, nil)
	if err != nil {
		return fmt.Errorf("get collection: %w", err)
	}

	doc := RunDocument{
		Key:       runID,
		Topic:     topic,
		Findings:  result.Findings,
		Summaries: summaries,
		Analysis:  result.Analysis,
	}

	reader, err := col.CreateDocuments(ctx, []any{doc})
	if err != nil {
		return fmt.Errorf("create findings document: %w", err)
	}
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("create findings document: %w", err)
	}

	return nil
}

// GetRun fetches a completed run's findings document.
func (s *FindingsStore) GetRun(ctx context.Context, runID string) (*RunDocument, error) {
	query := fmt.Sprintf("FOR d IN %s FILTER d._key == @key RETURN d", s.collection)

	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{"key": runID},
	})
	if err != nil {
		return nil, fmt.Errorf("query findings document: %w", err)
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return nil, ErrFindingsNotFound
	}

	var doc RunDocument
	if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
		return nil, fmt.Errorf("read findings document: %w", err)
	}
	return &doc, nil
}
