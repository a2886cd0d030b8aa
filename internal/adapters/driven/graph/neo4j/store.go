package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.GraphStore = (*Store)(nil)

// Config holds the connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

// ConfigFrom reads neo4j.* keys. An empty URI means no graph store is configured.
func ConfigFrom(store driven.ConfigStore) Config {
	cfg := Config{
		URI:      store.GetString("neo4j.uri"),
		Username: store.GetString("neo4j.username"),
		Password: store.GetString("neo4j.password"),
		Database: store.GetString("neo4j.database"),
		Timeout:  store.GetDuration("neo4j.timeout"),
	}
	if cfg.Username == "" {
		cfg.Username = "neo4j"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return cfg
}

// Store writes to Neo4j through managed write transactions.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	now      func() time.Time
	log      *slog.Logger
	schema   sync.Once
}

// New connects and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: neo4j.uri is required", domain.ErrConfigInvalid)
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.SocketConnectTimeout = cfg.Timeout
		})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	return &Store{
		driver:   driver,
		database: cfg.Database,
		now:      time.Now,
		log:      logger.For("graph"),
	}, nil
}

// UpsertEntities merges entity nodes keyed by entity ID.
func (s *Store) UpsertEntities(ctx context.Context, entities []domain.CanonicalEntity) error {
	return s.write(ctx, entityStatements(entities, s.now()))
}

// UpsertRelationships merges typed edges keyed by (from, to, type).
func (s *Store) UpsertRelationships(ctx context.Context, rels []domain.Relationship) error {
	stmts, err := relationshipStatements(rels, s.now())
	if err != nil {
		return err
	}
	return s.write(ctx, stmts)
}

// UpsertInsights merges insight nodes and their evidence edges.
func (s *Store) UpsertInsights(ctx context.Context, insights []domain.Insight, links []domain.EvidenceLink) error {
	return s.write(ctx, insightStatements(insights, links, s.now()))
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}

// ensureSchema creates the constraints once per store. Failures are logged
// because restricted users may not manage schema.
func (s *Store) ensureSchema(ctx context.Context, session neo4j.SessionWithContext) {
	s.schema.Do(func() {
		for _, cypher := range schemaStatements {
			res, err := session.Run(ctx, cypher, nil)
			if err != nil {
				s.log.Warn("schema init failed (continuing)", "error", err)
				continue
			}
			_, _ = res.Consume(ctx)
		}
	})
}

// write runs the statements in one managed transaction.
func (s *Store) write(ctx context.Context, stmts []statement) error {
	if len(stmts) == 0 {
		return nil
	}
	if s.driver == nil {
		return fmt.Errorf("neo4j: store closed")
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	s.ensureSchema(ctx, session)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range stmts {
			res, err := tx.Run(ctx, st.cypher, st.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j: write: %w", err)
	}
	return nil
}
