package dynamo

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/strata/store"
)

// Attributes managed by the client. Field names never start with '_'.
const (
	attrKind      = "_kind"
	attrID        = "_id"
	attrVersion   = "_version"
	attrCreatedAt = "_created_at"
	attrUpdatedAt = "_updated_at"
)

// encodeValue converts a serialized field value to an attribute value.
// Timestamps use store.TimeLayout and keys their "kind/id" form, so both
// compare correctly as strings.
func encodeValue(v any) (types.AttributeValue, error) {
	switch x := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case time.Time:
		return &types.AttributeValueMemberS{Value: x.UTC().Format(store.TimeLayout)}, nil
	case store.Key:
		return &types.AttributeValueMemberS{Value: x.Ref()}, nil
	}
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot store %T: %w", store.ErrBadValue, v, err)
	}
	return av, nil
}

// decodeValue converts an attribute value to the raw form handed to
// Model.FromDatabase. Numbers decode to int64 when integral.
func decodeValue(av types.AttributeValue) (any, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed number %q", store.ErrBadValue, v.Value)
		}
		return f, nil
	case *types.AttributeValueMemberBOOL:
		return v.Value, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	}
	var out any
	if err := attributevalue.Unmarshal(av, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrBadValue, err)
	}
	return out, nil
}

// EncodeItem builds the stored item for an entity's serialized values.
func EncodeItem(key store.Key, values store.Values) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(values)+2)
	for name, v := range values {
		av, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		item[name] = av
	}
	item[attrKind] = &types.AttributeValueMemberS{Value: key.Kind}
	item[attrID] = &types.AttributeValueMemberS{Value: key.ID}
	return item, nil
}

// DecodeItem splits a stored item into its key and field values. Managed
// attributes are dropped.
func DecodeItem(item map[string]types.AttributeValue) (store.Key, store.Values, error) {
	var key store.Key
	if v, ok := item[attrKind].(*types.AttributeValueMemberS); ok {
		key.Kind = v.Value
	}
	if v, ok := item[attrID].(*types.AttributeValueMemberS); ok {
		key.ID = v.Value
	}
	if key.Kind == "" || key.ID == "" {
		return store.Key{}, nil, fmt.Errorf("%w: item has no %s/%s key", store.ErrBadValue, attrKind, attrID)
	}
	values := make(store.Values, len(item))
	for name, av := range item {
		if strings.HasPrefix(name, "_") {
			continue
		}
		v, err := decodeValue(av)
		if err != nil {
			return store.Key{}, nil, fmt.Errorf("%s.%s: %w", key.Kind, name, err)
		}
		values[name] = v
	}
	return key, values, nil
}

func primaryKey(key store.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrKind: &types.AttributeValueMemberS{Value: key.Kind},
		attrID:   &types.AttributeValueMemberS{Value: key.ID},
	}
}

// cursorAttr is the JSON form of one key attribute in a page cursor.
type cursorAttr struct {
	S *string `json:"S,omitempty"`
	N *string `json:"N,omitempty"`
	B []byte  `json:"B,omitempty"`
}

// encodeCursor renders a LastEvaluatedKey as an opaque URL-safe string.
func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	out := make(map[string]cursorAttr, len(key))
	for name, av := range key {
		switch v := av.(type) {
		case *types.AttributeValueMemberS:
			out[name] = cursorAttr{S: &v.Value}
		case *types.AttributeValueMemberN:
			out[name] = cursorAttr{N: &v.Value}
		case *types.AttributeValueMemberB:
			out[name] = cursorAttr{B: v.Value}
		default:
			return "", fmt.Errorf("%w: unsupported key attribute %s of type %T", store.ErrClient, name, av)
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// decodeCursor reverses encodeCursor.
func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", store.ErrBadValue)
	}
	var in map[string]cursorAttr
	if err := json.Unmarshal(b, &in); err != nil || len(in) == 0 {
		return nil, fmt.Errorf("%w: malformed cursor", store.ErrBadValue)
	}
	key := make(map[string]types.AttributeValue, len(in))
	for name, a := range in {
		switch {
		case a.S != nil:
			key[name] = &types.AttributeValueMemberS{Value: *a.S}
		case a.N != nil:
			key[name] = &types.AttributeValueMemberN{Value: *a.N}
		case a.B != nil:
			key[name] = &types.AttributeValueMemberB{Value: a.B}
		default:
			return nil, fmt.Errorf("%w: malformed cursor", store.ErrBadValue)
		}
	}
	return key, nil
}
