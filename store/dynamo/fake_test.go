package dynamo

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeAPI is an in-memory table that understands the expressions the
// client builds. It ignores FilterExpression and index names; tests
// inspect the recorded inputs for those.
type fakeAPI struct {
	mu      sync.Mutex
	items   map[string]map[string]types.AttributeValue
	queries []*dynamodb.QueryInput

	err             error
	unprocessedOnce bool
	batchCalls      int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(key map[string]types.AttributeValue) string {
	kind, _ := key[attrKind].(*types.AttributeValueMemberS)
	id, _ := key[attrID].(*types.AttributeValueMemberS)
	return kind.Value + "\x00" + id.Value
}

func cloneItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	item, ok := f.items[itemKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: cloneItem(item)}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	k := itemKey(in.Item)
	if aws.ToString(in.ConditionExpression) == "attribute_not_exists(#id)" {
		if _, exists := f.items[k]; exists {
			return nil, conditionFailed()
		}
	}
	f.items[k] = cloneItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	k := itemKey(in.Key)
	item, exists := f.items[k]
	if !exists {
		return nil, conditionFailed()
	}
	item = cloneItem(item)
	for _, clause := range strings.Split(strings.TrimPrefix(aws.ToString(in.UpdateExpression), "SET "), ", ") {
		lhs, rhs, _ := strings.Cut(clause, " = ")
		name := in.ExpressionAttributeNames[lhs]
		if strings.HasPrefix(rhs, ":") && !strings.Contains(rhs, " ") {
			item[name] = in.ExpressionAttributeValues[rhs]
			continue
		}
		// if_not_exists(#version, :zero) + :one
		n := int64(0)
		if v, ok := item[name].(*types.AttributeValueMemberN); ok {
			n, _ = strconv.ParseInt(v.Value, 10, 64)
		}
		item[name] = &types.AttributeValueMemberN{Value: strconv.FormatInt(n+1, 10)}
	}
	f.items[k] = item
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	delete(f.items, itemKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, in)
	if f.err != nil {
		return nil, f.err
	}

	kind := in.ExpressionAttributeValues[":kind"].(*types.AttributeValueMemberS).Value
	var matched []map[string]types.AttributeValue
	for _, item := range f.items {
		if item[attrKind].(*types.AttributeValueMemberS).Value == kind {
			matched = append(matched, item)
		}
	}
	id := func(item map[string]types.AttributeValue) string {
		return item[attrID].(*types.AttributeValueMemberS).Value
	}
	forward := in.ScanIndexForward == nil || *in.ScanIndexForward
	sort.Slice(matched, func(i, j int) bool {
		if forward {
			return id(matched[i]) < id(matched[j])
		}
		return id(matched[i]) > id(matched[j])
	})

	if in.ExclusiveStartKey != nil {
		after := in.ExclusiveStartKey[attrID].(*types.AttributeValueMemberS).Value
		for len(matched) > 0 && (forward && id(matched[0]) <= after || !forward && id(matched[0]) >= after) {
			matched = matched[1:]
		}
	}

	out := &dynamodb.QueryOutput{}
	if in.Limit != nil && int(*in.Limit) < len(matched) {
		matched = matched[:*in.Limit]
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			attrKind: matched[len(matched)-1][attrKind],
			attrID:   matched[len(matched)-1][attrID],
		}
	}
	out.Count = int32(len(matched))
	if in.Select != types.SelectCount {
		for _, item := range matched {
			out.Items = append(out.Items, cloneItem(item))
		}
	}
	return out, nil
}

func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := &dynamodb.ScanOutput{}
	if aws.ToInt32(in.Segment) != 0 {
		return out, nil
	}
	for _, item := range f.items {
		out.Items = append(out.Items, map[string]types.AttributeValue{
			attrKind: item[attrKind],
			attrID:   item[attrID],
		})
	}
	return out, nil
}

func (f *fakeAPI) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, requests := range in.RequestItems {
		if f.unprocessedOnce && len(requests) > 1 {
			f.unprocessedOnce = false
			out.UnprocessedItems[table] = requests[len(requests)-1:]
			requests = requests[:len(requests)-1]
		}
		for _, r := range requests {
			delete(f.items, itemKey(r.DeleteRequest.Key))
		}
	}
	return out, nil
}

func (f *fakeAPI) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *fakeAPI) lastQuery() *dynamodb.QueryInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return nil
	}
	return f.queries[len(f.queries)-1]
}
