package dynamo

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/appellation/rejects/store"
)

// Begin implements store.Backend.
func (b *Backend) Begin() store.Batch {
	return &batch{backend: b}
}

type op struct {
	key     string
	hash    bool
	fields  map[string]string
	members []string
	del     bool
}

type batch struct {
	backend *Backend
	ops     []op
}

func (q *batch) HashSetFields(key string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	q.ops = append(q.ops, op{key: key, hash: true, fields: maps.Clone(fields)})
}

func (q *batch) SetAdd(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	q.ops = append(q.ops, op{key: key, members: slices.Clone(members)})
}

func (q *batch) Delete(key string) {
	q.ops = append(q.ops, op{key: key, del: true})
}

func (q *batch) Len() int {
	return len(q.ops)
}

// pending is the net effect of every queued op on one key. A transaction may
// touch each item once.
type pending struct {
	key     string
	replace bool
	kind    string
	fields  map[string]string
	members []string
}

// merge folds the queued ops into one write per key, in first-seen order.
func merge(ops []op) ([]*pending, error) {
	var order []*pending
	byKey := make(map[string]*pending)

	for _, o := range ops {
		p, ok := byKey[o.key]
		if !ok {
			p = &pending{key: o.key}
			byKey[o.key] = p
			order = append(order, p)
		}

		switch {
		case o.del:
			p.replace = true
			p.kind = ""
			p.fields = nil
			p.members = nil
		case o.hash:
			if p.kind == kindSet {
				return nil, fmt.Errorf("%w: %q", ErrWrongType, o.key)
			}
			p.kind = kindHash
			if p.fields == nil {
				p.fields = make(map[string]string, len(o.fields))
			}
			maps.Copy(p.fields, o.fields)
		default:
			if p.kind == kindHash {
				return nil, fmt.Errorf("%w: %q", ErrWrongType, o.key)
			}
			p.kind = kindSet
			p.members = append(p.members, o.members...)
		}
	}

	return order, nil
}

// transactItem returns the write for p. Keys only deleted become a Delete,
// keys deleted then written a Put of the whole item, the rest conditional
// Updates.
func (b *Backend) transactItem(p *pending, now types.AttributeValue) types.TransactWriteItem {
	table := aws.String(b.config.Table)
	switch {
	case p.kind == "":
		return types.TransactWriteItem{
			Delete: &types.Delete{TableName: table, Key: itemKey(p.key)},
		}
	case p.replace:
		return types.TransactWriteItem{
			Put: &types.Put{TableName: table, Item: newItem(p.key, p.kind, p.fields, p.members)},
		}
	case p.kind == kindHash:
		return hashUpdate(p.key, p.fields, now).transactItem(b.config.Table, p.key)
	default:
		return setUpdate(p.key, p.members, now).transactItem(b.config.Table, p.key)
	}
}

// Exec commits the batch with TransactWriteItems. Batches touching more than
// MaxBatchSize items are committed in several transactions, in queue order.
func (q *batch) Exec(ctx context.Context) error {
	writes, err := merge(q.ops)
	if err != nil {
		return err
	}

	b := q.backend
	for chunk := range slices.Chunk(writes, MaxBatchSize) {
		if err := b.commit(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// commit runs one transaction, retrying after resolving a failed condition.
func (b *Backend) commit(ctx context.Context, writes []*pending) error {
	for i := 0; i < b.config.MaxRetries; i++ {
		now := b.nowValue()
		items := make([]types.TransactWriteItem, len(writes))
		for j, p := range writes {
			items[j] = b.transactItem(p, now)
		}

		_, err := b.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		})
		failed := conditionFailedAt(err)
		if failed < 0 {
			return err
		}
		if err := b.resolve(ctx, writes[failed].key, writes[failed].kind); err != nil {
			return err
		}
	}
	return ErrContended
}
