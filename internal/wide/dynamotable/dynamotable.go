// Package dynamotable keeps a column-family table in DynamoDB, one item per
// row with the row key as hash key and the qualified columns in a binary map.
//
// DynamoDB Scan does not return items in key order, so a bounded scan here is
// a filtered full scan: it returns the right rows, in encounter order, but it
// still reads the whole table.
package dynamotable

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/Clark-Hu/movie-ratings/internal/wide"
)

const (
	keyAttribute   = "row_key"
	cellsAttribute = "cells"
)

// Client abstracts the DynamoDB calls used by Table.
type Client interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type item struct {
	RowKey string            `dynamodbav:"row_key"`
	Cells  map[string][]byte `dynamodbav:"cells"`
}

// Table is a DynamoDB-backed table.
type Table struct {
	client    Client
	tableName string
	pageSize  int32
}

// New wraps client. pageSize <= 0 leaves the page size to DynamoDB.
func New(client Client, tableName string, pageSize int) *Table {
	return &Table{client: client, tableName: tableName, pageSize: int32(pageSize)}
}

// NewConnector loads the default AWS configuration for region and builds a
// new client on every Open. A non-empty endpoint overrides the service URL
// (DynamoDB Local).
func NewConnector(region, endpoint, tableName string, pageSize int) wide.Connector {
	return wide.ConnectorFunc(func(ctx context.Context) (wide.Table, error) {
		opts := []func(*awsconfig.LoadOptions) error{}
		if region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		return New(client, tableName, pageSize), nil
	})
}

// Scan returns items with start <= row_key < stop in DynamoDB's order.
func (t *Table) Scan(_ context.Context, start, stop []byte) (wide.Scanner, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(t.tableName),
	}
	if t.pageSize > 0 {
		input.Limit = aws.Int32(t.pageSize)
	}

	cond, ok := keyRange(start, stop)
	if ok {
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return nil, fmt.Errorf("dynamotable: build filter: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	return &scanner{paginator: dynamodb.NewScanPaginator(t.client, input)}, nil
}

func keyRange(start, stop []byte) (expression.ConditionBuilder, bool) {
	key := expression.Name(keyAttribute)
	switch {
	case start != nil && stop != nil:
		return key.GreaterThanEqual(expression.Value(string(start))).
			And(key.LessThan(expression.Value(string(stop)))), true
	case start != nil:
		return key.GreaterThanEqual(expression.Value(string(start))), true
	case stop != nil:
		return key.LessThan(expression.Value(string(stop))), true
	default:
		return expression.ConditionBuilder{}, false
	}
}

// Put writes row as one item, replacing any previous columns.
func (t *Table) Put(ctx context.Context, row wide.Row) error {
	av, err := attributevalue.MarshalMap(item{RowKey: string(row.Key), Cells: row.Columns})
	if err != nil {
		return fmt.Errorf("dynamotable: marshal failed: %w", err)
	}
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamotable: put failed: %w", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no dedicated connection.
func (t *Table) Close() error { return nil }

type scanner struct {
	paginator *dynamodb.ScanPaginator
	page      *wide.SliceScanner
	current   wide.Row
	err       error
}

func (s *scanner) Next(ctx context.Context) bool {
	for {
		if s.err != nil {
			return false
		}
		if s.page != nil && s.page.Next(ctx) {
			s.current = s.page.Row()
			return true
		}
		if !s.paginator.HasMorePages() {
			return false
		}
		out, err := s.paginator.NextPage(ctx)
		if err != nil {
			s.err = fmt.Errorf("dynamotable: scan failed: %w", err)
			return false
		}
		rows := make([]wide.Row, 0, len(out.Items))
		for _, raw := range out.Items {
			var it item
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				s.err = fmt.Errorf("dynamotable: unmarshal failed: %w", err)
				return false
			}
			rows = append(rows, wide.Row{Key: []byte(it.RowKey), Columns: it.Cells})
		}
		s.page = wide.NewSliceScanner(rows)
	}
}

func (s *scanner) Row() wide.Row { return s.current }

func (s *scanner) Err() error { return s.err }

func (s *scanner) Close() error { return nil }
