// Package bootstrap opens the storage backend selected by STORE_BACKEND
// for the processes under cmd/.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/citizen-appointments/internal/appointment"
	"github.com/hackgods/citizen-appointments/internal/awsclient"
	"github.com/hackgods/citizen-appointments/internal/catalog"
	"github.com/hackgods/citizen-appointments/internal/config"
	"github.com/hackgods/citizen-appointments/internal/db"
)

// Check is a named readiness probe of a backing store.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Store bundles the appointment repository with the service catalog it
// reads. Pool is set whenever Postgres is connected, including for the
// DynamoDB backend when a DSN is configured for the catalog.
type Store struct {
	Repo    appointment.Repository
	Catalog *catalog.Catalog
	Pool    *pgxpool.Pool
	Checks  []Check
}

// OpenStore connects the configured backend. The memory backend starts with
// the default service catalog.
func OpenStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return &Store{
			Repo:    appointment.NewPgRepository(pool),
			Catalog: catalog.New(catalog.NewPgStore(pool)),
			Pool:    pool,
			Checks:  []Check{{Name: "postgres", Ping: pool.Ping}},
		}, nil

	case config.BackendDynamo:
		awsCfg, err := awsclient.LoadConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := awsclient.NewDynamo(awsCfg)
		s := &Store{
			Repo:   appointment.NewDynamoRepository(client, cfg.DynamoTable),
			Checks: []Check{{Name: "dynamodb", Ping: describeTable(client, cfg.DynamoTable)}},
		}
		if cfg.PostgresDSN == "" {
			logger.Warn().Msg("no POSTGRES_DSN, serving the default service catalog from memory")
			s.Catalog = catalog.New(catalog.NewMemoryStore(catalog.DefaultServices()...))
			return s, nil
		}
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		s.Pool = pool
		s.Catalog = catalog.New(catalog.NewPgStore(pool))
		s.Checks = append(s.Checks, Check{Name: "postgres", Ping: pool.Ping})
		return s, nil

	case config.BackendMemory:
		logger.Warn().Msg("memory store backend: appointments are lost on restart")
		return &Store{
			Repo:    appointment.NewMemoryRepository(),
			Catalog: catalog.New(catalog.NewMemoryStore(catalog.DefaultServices()...)),
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// Close releases the Postgres pool if one was opened.
func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func describeTable(client *dynamodb.Client, table string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		return err
	}
}
