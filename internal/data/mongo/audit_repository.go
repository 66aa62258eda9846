// Package mongo stores the append-only audit trail in MongoDB.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tenantops/safety-core/internal/domain/audit"
)

// DefaultAuditCollection is used when no collection name is configured
const DefaultAuditCollection = "audit_events"

// AuditRepository implements audit.Repository. It only ever inserts and reads.
type AuditRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

func NewAuditRepository(logger *slog.Logger, db *mongo.Database, collection string) *AuditRepository {
	if collection == "" {
		collection = DefaultAuditCollection
	}
	return &AuditRepository{
		collection: db.Collection(collection),
		logger:     logger,
	}
}

// EnsureIndexes creates the tenant timeline index used by ListByTenant
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("tenant_timeline"),
	})
	if err != nil {
		r.logger.Error("Failed to create audit indexes", "error", err)
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}
	return nil
}

// Insert appends the event. A duplicate id means a retried write already landed.
func (r *AuditRepository) Insert(ctx context.Context, event *audit.Event) error {
	_, err := r.collection.InsertOne(ctx, event)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Debug("Audit event already stored", "event_id", event.ID.String())
			return nil
		}
		r.logger.Error("Failed to insert audit event",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"error", err)
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListByTenant returns a page of the tenant's events in insertion order
func (r *AuditRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*audit.Event, error) {
	filter := bson.M{"tenant_id": tenantID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list audit events", "tenant_id", tenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*audit.Event
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode audit events", "tenant_id", tenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}
	return events, nil
}
