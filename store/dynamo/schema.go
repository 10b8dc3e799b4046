package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/strata/store"
)

// TableAPI is the subset of *dynamodb.Client used to provision the table.
type TableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// CreateTableInput describes the table the client expects, with one local
// secondary index per Config.Indexes entry. Index attributes take their
// type from the registered kinds: numeric fields are N, all others S.
func CreateTableInput(cfg Config, registry *store.Registry) (*dynamodb.CreateTableInput, error) {
	cfg.validate()
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(cfg.Table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrKind), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrID), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrKind), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrID), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	}

	fields := make([]string, 0, len(cfg.Indexes))
	for field := range cfg.Indexes {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		typ, err := attributeType(registry, field)
		if err != nil {
			return nil, err
		}
		input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(field),
			AttributeType: typ,
		})
		input.LocalSecondaryIndexes = append(input.LocalSecondaryIndexes, types.LocalSecondaryIndex{
			IndexName: aws.String(cfg.Indexes[field]),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(attrKind), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(field), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}
	return input, nil
}

func attributeType(registry *store.Registry, field string) (types.ScalarAttributeType, error) {
	var found types.ScalarAttributeType
	for _, kind := range registry.Kinds() {
		m, _ := registry.Lookup(kind)
		f, ok := m.Field(field)
		if !ok {
			continue
		}
		typ := types.ScalarAttributeTypeS
		switch f.Type().(type) {
		case store.IntegerType, store.FloatType:
			typ = types.ScalarAttributeTypeN
		case store.BooleanType:
			return "", fmt.Errorf("%w: boolean field %s.%s cannot be an index key", store.ErrConfiguration, kind, field)
		}
		if found != "" && found != typ {
			return "", fmt.Errorf("%w: indexed field %q has conflicting types across kinds", store.ErrConfiguration, field)
		}
		found = typ
	}
	if found == "" {
		return "", fmt.Errorf("%w: indexed field %q is not declared by any kind", store.ErrConfiguration, field)
	}
	return found, nil
}

// CreateTable creates the table and waits up to wait for it to become
// active. A zero wait returns without waiting. An existing table is left
// untouched.
func CreateTable(ctx context.Context, api TableAPI, cfg Config, registry *store.Registry, wait time.Duration) error {
	input, err := CreateTableInput(cfg, registry)
	if err != nil {
		return err
	}
	if _, err := api.CreateTable(ctx, input); err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("%w: create table %s: %w", store.ErrClient, aws.ToString(input.TableName), err)
		}
	}
	if wait <= 0 {
		return nil
	}
	waiter := dynamodb.NewTableExistsWaiter(api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName}, wait); err != nil {
		return fmt.Errorf("%w: wait for table %s: %w", store.ErrClient, aws.ToString(input.TableName), err)
	}
	return nil
}
