package store

import (
	"context"
	"database/sql"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/order"
)

// OrderBackend is an order store that also feeds the outbox relay
type OrderBackend interface {
	order.Store
	FetchUnpublished(ctx context.Context, limit int) ([]order.Event, error)
	MarkPublished(ctx context.Context, eventID string) error
}

var (
	_ OrderBackend = (*PostgresOrderStore)(nil)
	_ OrderBackend = (*DynamoOrderStore)(nil)
)

// OpenOrderBackend selects the order store. Catalog and users always live in
// PostgreSQL; only orders and their outbox can move to DynamoDB.
func OpenOrderBackend(ctx context.Context, cfg config.StoreConfig, db *sql.DB) (OrderBackend, error) {
	switch cfg.Backend {
	case "postgres":
		return NewPostgresOrderStore(db), nil
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return NewDynamoOrderStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
