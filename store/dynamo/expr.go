package dynamo

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/strata/store"
)

// expression accumulates a DynamoDB expression and its placeholders.
type expression struct {
	clauses []string
	names   map[string]string
	values  map[string]types.AttributeValue
}

func newExpression() *expression {
	return &expression{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

// filterExpression translates query filters into a FilterExpression.
// A nil equality also matches items that lack the attribute.
func filterExpression(filters []store.Filter) (*expression, error) {
	e := newExpression()
	for i, f := range filters {
		name := fmt.Sprintf("#f%d", i)
		value := fmt.Sprintf(":f%d", i)
		e.names[name] = f.Field

		if f.Value == nil {
			if f.Op != store.OpEq {
				return nil, fmt.Errorf("%w: %s %s nil is not supported", store.ErrBadValue, f.Field, f.Op)
			}
			e.values[":null"] = &types.AttributeValueMemberS{Value: "NULL"}
			e.clauses = append(e.clauses, fmt.Sprintf("(attribute_not_exists(%s) OR attribute_type(%s, :null))", name, name))
			continue
		}
		if _, isBool := f.Value.(bool); isBool && f.Op != store.OpEq {
			return nil, fmt.Errorf("%w: booleans only support %s", store.ErrBadValue, store.OpEq)
		}

		av, err := encodeValue(f.Value)
		if err != nil {
			return nil, err
		}
		e.values[value] = av
		e.clauses = append(e.clauses, fmt.Sprintf("%s %s %s", name, f.Op, value))
	}
	return e, nil
}

// String joins the clauses with AND.
func (e *expression) String() string {
	return strings.Join(e.clauses, " AND ")
}

// mergeExprNames merges multiple expression attribute name maps.
func mergeExprNames(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// mergeExprValues merges multiple expression attribute value maps.
func mergeExprValues(maps ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}
