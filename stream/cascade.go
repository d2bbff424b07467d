// Package stream provides DynamoDB Streams handlers for cascade operations.
//
// A record expired through Store.Expire is removed by the DynamoDB TTL
// service some time after its deadline. Children written below it after the
// expiry was set carry no TTL of their own; HandleExpiry deletes them when
// the parent's REMOVE event arrives.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/sync/errgroup"

	"github.com/appellation/rejects/backend/dynamo"
	"github.com/appellation/rejects/internal/shard"
	"github.com/appellation/rejects/store"
	"github.com/appellation/rejects/token"
)

// DefaultWorkers is the number of records a Handler processes concurrently.
const DefaultWorkers = 4

// Handler processes DynamoDB stream events for cascade deletes.
type Handler struct {
	store   *store.Store
	logger  *slog.Logger
	workers int
}

// NewHandler creates a new stream handler.
func NewHandler(s *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   s,
		logger:  logger,
		workers: DefaultWorkers,
	}
}

// WithWorkers sets how many records are processed concurrently. Records for
// the same key always go to the same worker, in stream order.
func (h *Handler) WithWorkers(n int) *Handler {
	if n < 1 {
		n = 1
	}
	h.workers = n
	return h
}

// HandleExpiry processes DynamoDB stream events and cascade-deletes the
// children of records removed by the TTL service.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleExpiry(ctx context.Context, event events.DynamoDBEvent) error {
	queues := make([][]events.DynamoDBEventRecord, h.workers)
	for _, record := range event.Records {
		i := shard.Of(recordKey(record), h.workers)
		queues[i] = append(queues[i], record)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, queue := range queues {
		if len(queue) == 0 {
			continue
		}
		g.Go(func() error {
			for _, record := range queue {
				if err := h.processRecord(gctx, record); err != nil {
					h.logger.Error("failed to process record",
						"eventID", record.EventID,
						"shard", shard.Label(i),
						"error", err,
					)
					return err // Will retry, eventually DLQ
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	// Only process REMOVE events issued by the TTL service; user deletes
	// already cascaded through Store.Delete.
	if record.EventName != "REMOVE" || !isTTLRemoval(record) {
		return nil
	}

	image := record.Change.OldImage
	key := recordKey(record)
	refs, err := references(image)
	if err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}

	h.logger.Info("processing expiry cascade",
		"key", key,
		"ttl", getNumberAttr(image, dynamo.AttrTTL),
		"childCount", len(refs),
	)

	removed := 0
	for _, ref := range refs {
		n, err := h.store.DeleteReference(ctx, ref)
		if err != nil {
			return fmt.Errorf("delete child %q of %q: %w", ref.Key, key, err)
		}
		removed += n
	}

	h.logger.Info("expiry cascade completed",
		"key", key,
		"childrenProcessed", len(refs),
		"recordsRemoved", removed,
	)

	return nil
}

// isTTLRemoval reports whether the record was removed by the DynamoDB TTL
// service rather than by a client.
func isTTLRemoval(record events.DynamoDBEventRecord) bool {
	id := record.UserIdentity
	return id != nil && id.Type == "Service" && id.PrincipalID == "dynamodb.amazonaws.com"
}

// references returns the reference tokens held by a record image, from its
// hash fields or set members.
func references(image map[string]events.DynamoDBAttributeValue) ([]token.Reference, error) {
	var values []string
	for name := range image {
		if strings.HasPrefix(name, dynamo.FieldPrefix) {
			values = append(values, getStringAttr(image, name))
		}
	}
	values = append(values, getStringSetAttr(image, dynamo.AttrMembers)...)

	var refs []token.Reference
	for _, v := range values {
		if !token.IsReference(v) {
			continue
		}
		ref, err := token.DecodeReference(v)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// recordKey returns the record key of a stream record, falling back to the
// partition key when the image lacks one.
func recordKey(record events.DynamoDBEventRecord) string {
	for _, image := range []map[string]events.DynamoDBAttributeValue{
		record.Change.OldImage,
		record.Change.NewImage,
	} {
		if key := getStringAttr(image, dynamo.AttrKey); key != "" {
			return key
		}
	}
	return getStringAttr(record.Change.Keys, dynamo.AttrPK)
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// getStringSetAttr extracts a string set attribute from a DynamoDB stream image.
func getStringSetAttr(image map[string]events.DynamoDBAttributeValue, key string) []string {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeStringSet {
			return v.StringSet()
		}
	}
	return nil
}
