package dynamo

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// liveCondition holds for items that are absent or not yet expired.
const liveCondition = "(attribute_not_exists(#ttl) OR #ttl > :now)"

// update is one conditional UpdateItem, usable alone or in a transaction.
type update struct {
	expr   string
	cond   string
	names  map[string]string
	values map[string]types.AttributeValue
}

func (u update) input(table, key string) *dynamodb.UpdateItemInput {
	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       itemKey(key),
		UpdateExpression:          aws.String(u.expr),
		ConditionExpression:       aws.String(u.cond),
		ExpressionAttributeNames:  u.names,
		ExpressionAttributeValues: u.values,
	}
}

func (u update) transactItem(table, key string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 aws.String(table),
			Key:                       itemKey(key),
			UpdateExpression:          aws.String(u.expr),
			ConditionExpression:       aws.String(u.cond),
			ExpressionAttributeNames:  u.names,
			ExpressionAttributeValues: u.values,
		},
	}
}

// baseUpdate requires the item to be live and of the given kind (or absent).
func baseUpdate(key, kind string, now types.AttributeValue) update {
	return update{
		cond: liveCondition + " AND (attribute_not_exists(#kind) OR #kind = :kind)",
		names: map[string]string{
			"#kind": AttrKind,
			"#key":  AttrKey,
			"#ttl":  AttrTTL,
		},
		values: map[string]types.AttributeValue{
			":kind": &types.AttributeValueMemberS{Value: kind},
			":key":  &types.AttributeValueMemberS{Value: key},
			":now":  now,
		},
	}
}

// hashUpdate sets fields on a hash item. Placeholders follow sorted field
// order.
func hashUpdate(key string, fields map[string]string, now types.AttributeValue) update {
	u := baseUpdate(key, kindHash, now)
	clauses := []string{"#kind = :kind", "#key = :key"}
	for i, name := range slices.Sorted(maps.Keys(fields)) {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		u.names[nameKey] = FieldPrefix + name
		u.values[valueKey] = &types.AttributeValueMemberS{Value: fields[name]}
		clauses = append(clauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}
	u.expr = "SET " + strings.Join(clauses, ", ")
	return u
}

// setUpdate adds members to the string set of a set item.
func setUpdate(key string, members []string, now types.AttributeValue) update {
	u := baseUpdate(key, kindSet, now)
	u.names["#members"] = AttrMembers
	u.values[":members"] = &types.AttributeValueMemberSS{Value: unique(members)}
	u.expr = "SET #kind = :kind, #key = :key ADD #members :members"
	return u
}

// incrementUpdate writes stored to field if the field still holds cur (or is
// still missing when exists is false).
func incrementUpdate(key, field, cur string, exists bool, stored string, now types.AttributeValue) update {
	u := baseUpdate(key, kindHash, now)
	u.names["#f"] = FieldPrefix + field
	u.values[":new"] = &types.AttributeValueMemberS{Value: stored}
	u.expr = "SET #kind = :kind, #key = :key, #f = :new"
	if exists {
		u.values[":old"] = &types.AttributeValueMemberS{Value: cur}
		u.cond += " AND #f = :old"
	} else {
		u.cond += " AND attribute_not_exists(#f)"
	}
	return u
}

// newItem builds the full item for a record written from scratch.
func newItem(key, kind string, fields map[string]string, members []string) map[string]types.AttributeValue {
	item := itemKey(key)
	item[AttrKey] = &types.AttributeValueMemberS{Value: key}
	item[AttrKind] = &types.AttributeValueMemberS{Value: kind}
	for name, v := range fields {
		item[FieldPrefix+name] = &types.AttributeValueMemberS{Value: v}
	}
	if len(members) > 0 {
		item[AttrMembers] = &types.AttributeValueMemberSS{Value: unique(members)}
	}
	return item
}

// unique drops repeated members, keeping first occurrences in order.
func unique(members []string) []string {
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
