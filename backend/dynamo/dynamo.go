// Package dynamo provides a store.Backend on a single DynamoDB table.
//
// Every record is one item keyed by the string partition key "pk". Hash
// fields are string attributes named with FieldPrefix; set members are a
// string set in "members". Expiry uses the table's TTL attribute "ttl", and
// items past their TTL read as absent until DynamoDB removes them.
//
// Table schema:
//
//	pk (S, partition key)
//	TTL attribute: ttl
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/appellation/rejects/internal/shard"
	"github.com/appellation/rejects/store"
	"github.com/appellation/rejects/token"
)

// Item attribute names.
const (
	AttrPK      = "pk"
	AttrKey     = "key"
	AttrKind    = "kind"
	AttrMembers = "members"
	AttrTTL     = "ttl"

	// FieldPrefix prefixes the attribute holding each hash field.
	FieldPrefix = "f_"
)

const (
	kindHash = "hash"
	kindSet  = "set"
)

// MaxBatchSize is the item limit of one TransactWriteItems call.
const MaxBatchSize = 100

var (
	// ErrWrongType is returned when a hash command targets a set or the reverse.
	ErrWrongType = errors.New("dynamo: operation against a key holding the wrong kind of value")

	// ErrContended is returned when a conditional write keeps failing.
	ErrContended = errors.New("dynamo: conditional write retries exhausted")
)

// API is the subset of *dynamodb.Client the backend uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Config holds configuration for the Backend.
type Config struct {
	// Table is the name of the records table.
	// Default: "rejects"
	Table string

	// MaxRetries bounds the attempts of a conditional write that keeps
	// losing a race or meeting an expired item.
	// Default: 16
	MaxRetries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Table:      "rejects",
		MaxRetries: 16,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "rejects"
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 16
	}
}

// Backend stores records in DynamoDB.
type Backend struct {
	client API
	config Config

	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

var (
	_ store.Backend      = (*Backend)(nil)
	_ store.Expirer      = (*Backend)(nil)
	_ store.BatchLimiter = (*Backend)(nil)
)

// New creates a new Backend.
func New(client API, config Config) *Backend {
	config.validate()
	return &Backend{client: client, config: config, Now: time.Now}
}

// Table returns the table name.
func (b *Backend) Table() string {
	return b.config.Table
}

// MaxBatchSize implements store.BatchLimiter.
func (b *Backend) MaxBatchSize() int {
	return MaxBatchSize
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: shard.PartitionKey(key)},
	}
}

func (b *Backend) nowValue() types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(b.Now().Unix(), 10)}
}

// getItem reads the raw item for key. Expired items are returned with
// expired set.
func (b *Backend) getItem(ctx context.Context, key string) (item map[string]types.AttributeValue, expired bool, err error) {
	result, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.config.Table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, err
	}
	if result.Item == nil {
		return nil, false, nil
	}
	return result.Item, IsExpired(result.Item, b.Now()), nil
}

// record reads the live item for key and checks its kind.
func (b *Backend) record(ctx context.Context, key, kind string) (map[string]types.AttributeValue, error) {
	item, expired, err := b.getItem(ctx, key)
	if err != nil || item == nil || expired {
		return nil, err
	}
	if k := kindOf(item); k != "" && k != kind {
		return nil, fmt.Errorf("%w: %q", ErrWrongType, key)
	}
	return item, nil
}

// purge removes key if it is still expired.
func (b *Backend) purge(ctx context.Context, key string) error {
	_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(b.config.Table),
		Key:                       itemKey(key),
		ConditionExpression:       aws.String("#ttl <= :now"),
		ExpressionAttributeNames:  map[string]string{"#ttl": AttrTTL},
		ExpressionAttributeValues: map[string]types.AttributeValue{":now": b.nowValue()},
	})

	// Ignore condition failure - already gone or written since
	if isConditionalCheckFailed(err) {
		return nil
	}
	return err
}

// resolve inspects key after a conditional write on it failed. It purges an
// expired item and returns nil when the write should be retried.
func (b *Backend) resolve(ctx context.Context, key, kind string) error {
	item, expired, err := b.getItem(ctx, key)
	if err != nil {
		return err
	}
	if item == nil {
		return nil
	}
	if expired {
		return b.purge(ctx, key)
	}
	if k := kindOf(item); k != "" && k != kind {
		return fmt.Errorf("%w: %q", ErrWrongType, key)
	}
	return nil
}

// update runs a conditional update, retrying after resolve.
func (b *Backend) update(ctx context.Context, key, kind string, build func() update) error {
	for i := 0; i < b.config.MaxRetries; i++ {
		u := build()
		_, err := b.client.UpdateItem(ctx, u.input(b.config.Table, key))
		if !isConditionalCheckFailed(err) {
			return err
		}
		if err := b.resolve(ctx, key, kind); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %q", ErrContended, key)
}

func (b *Backend) HashSetFields(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return b.update(ctx, key, kindHash, func() update {
		return hashUpdate(key, fields, b.nowValue())
	})
}

func (b *Backend) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	item, err := b.record(ctx, key, kindHash)
	if err != nil || item == nil {
		return nil, err
	}
	return Fields(item), nil
}

func (b *Backend) HashFieldNames(ctx context.Context, key string) ([]string, error) {
	fields, err := b.HashGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(fields)), nil
}

func (b *Backend) HashFieldCount(ctx context.Context, key string) (int64, error) {
	fields, err := b.HashGetAll(ctx, key)
	if err != nil {
		return 0, err
	}
	return int64(len(fields)), nil
}

// increment applies a token-aware increment with a compare-and-set on the
// field's previous value.
func (b *Backend) increment(ctx context.Context, key, field string, apply func(cur string, exists bool) (string, error)) error {
	for i := 0; i < b.config.MaxRetries; i++ {
		item, expired, err := b.getItem(ctx, key)
		if err != nil {
			return err
		}
		if expired {
			if err := b.purge(ctx, key); err != nil {
				return err
			}
			continue
		}
		if k := kindOf(item); k != "" && k != kindHash {
			return fmt.Errorf("%w: %q", ErrWrongType, key)
		}

		cur, exists := Fields(item)[field]
		stored, err := apply(cur, exists)
		if err != nil {
			return err
		}

		u := incrementUpdate(key, field, cur, exists, stored, b.nowValue())
		_, err = b.client.UpdateItem(ctx, u.input(b.config.Table, key))
		if !isConditionalCheckFailed(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %q", ErrContended, key)
}

func (b *Backend) HashIncrementInt(ctx context.Context, key, field string, delta int64) (int64, error) {
	var n int64
	err := b.increment(ctx, key, field, func(cur string, exists bool) (string, error) {
		stored, v, err := token.IncrementInt(cur, exists, delta)
		n = v
		return stored, err
	})
	return n, err
}

func (b *Backend) HashIncrementFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	var f float64
	err := b.increment(ctx, key, field, func(cur string, exists bool) (string, error) {
		stored, v, err := token.IncrementFloat(cur, exists, delta)
		f = v
		return stored, err
	})
	return f, err
}

func (b *Backend) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return b.update(ctx, key, kindSet, func() update {
		return setUpdate(key, members, b.nowValue())
	})
}

func (b *Backend) SetMembers(ctx context.Context, key string) ([]string, error) {
	item, err := b.record(ctx, key, kindSet)
	if err != nil || item == nil {
		return nil, err
	}
	return Members(item)
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.config.Table),
		Key:       itemKey(key),
	})
	return err
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	item, expired, err := b.getItem(ctx, key)
	return item != nil && !expired, err
}

func (b *Backend) IsSet(ctx context.Context, key string) (bool, error) {
	item, expired, err := b.getItem(ctx, key)
	if err != nil || item == nil || expired {
		return false, err
	}
	return kindOf(item) == kindSet, nil
}

// Expire implements store.Expirer. DynamoDB TTL has one second resolution;
// the deadline is rounded up.
func (b *Backend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	deadline := b.Now().Add(ttl)
	secs := deadline.Unix()
	if deadline.After(time.Unix(secs, 0)) {
		secs++
	}
	ttlAttr, err := attributevalue.Marshal(secs)
	if err != nil {
		return err
	}

	_, err = b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(b.config.Table),
		Key:                 itemKey(key),
		UpdateExpression:    aws.String("SET #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_exists(#pk) AND " + liveCondition),
		ExpressionAttributeNames: map[string]string{
			"#ttl": AttrTTL,
			"#pk":  AttrPK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": ttlAttr,
			":now": b.nowValue(),
		},
	})

	// Ignore condition failure - missing or already expired
	if isConditionalCheckFailed(err) {
		return nil
	}
	return err
}

// IsExpired checks if an item has a TTL at or before now.
func IsExpired(item map[string]types.AttributeValue, now time.Time) bool {
	ttlAttr, exists := item[AttrTTL]
	if !exists {
		return false // No TTL = live
	}
	var ttl int64
	if err := attributevalue.Unmarshal(ttlAttr, &ttl); err != nil {
		return false
	}
	return ttl <= now.Unix()
}

// Fields returns the hash fields stored on an item.
func Fields(item map[string]types.AttributeValue) map[string]string {
	fields := make(map[string]string)
	for name, av := range item {
		field, ok := strings.CutPrefix(name, FieldPrefix)
		if !ok {
			continue
		}
		if v, ok := av.(*types.AttributeValueMemberS); ok {
			fields[field] = v.Value
		}
	}
	return fields
}

// Members returns the set members stored on an item.
func Members(item map[string]types.AttributeValue) ([]string, error) {
	av, ok := item[AttrMembers]
	if !ok {
		return nil, nil
	}
	var members []string
	if err := attributevalue.Unmarshal(av, &members); err != nil {
		return nil, fmt.Errorf("dynamo: decoding members: %w", err)
	}
	return members, nil
}

func kindOf(item map[string]types.AttributeValue) string {
	if v, ok := item[AttrKind].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// isConditionalCheckFailed reports whether err is a failed condition on a
// single-item write.
func isConditionalCheckFailed(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

// conditionFailedAt returns the index of the first transaction item whose
// condition failed, or -1.
func conditionFailedAt(err error) int {
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return i
			}
		}
	}
	return -1
}
