package dynamotable

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/movie-ratings/internal/wide"
)

type mockClient struct {
	ScanFn    func(ctx context.Context, in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
	PutItemFn func(ctx context.Context, in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
}

func (m *mockClient) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return m.ScanFn(ctx, in)
}

func (m *mockClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return m.PutItemFn(ctx, in)
}

func mustItem(t *testing.T, key, rating string) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(item{RowKey: key, Cells: map[string][]byte{"data:rating": []byte(rating)}})
	require.NoError(t, err)
	return av
}

func drain(t *testing.T, sc wide.Scanner) []wide.Row {
	t.Helper()
	defer sc.Close()
	var rows []wide.Row
	for sc.Next(context.Background()) {
		rows = append(rows, sc.Row())
	}
	return rows
}

func TestTable_ScanFollowsPages(t *testing.T) {
	calls := 0
	client := &mockClient{
		ScanFn: func(_ context.Context, in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			calls++
			assert.Equal(t, "ratings", *in.TableName)
			assert.Nil(t, in.FilterExpression, "unbounded scan has no filter")
			require.NotNil(t, in.Limit)
			assert.Equal(t, int32(2), *in.Limit)
			switch calls {
			case 1:
				assert.Nil(t, in.ExclusiveStartKey)
				return &dynamodb.ScanOutput{
					Items:            []map[string]types.AttributeValue{mustItem(t, "u2_m1", "3"), mustItem(t, "u1_m1", "5")},
					LastEvaluatedKey: map[string]types.AttributeValue{"row_key": &types.AttributeValueMemberS{Value: "u1_m1"}},
				}, nil
			default:
				require.NotNil(t, in.ExclusiveStartKey)
				return &dynamodb.ScanOutput{
					Items: []map[string]types.AttributeValue{mustItem(t, "u3_m2", "1")},
				}, nil
			}
		},
	}

	sc, err := New(client, "ratings", 2).Scan(context.Background(), nil, nil)
	require.NoError(t, err)
	rows := drain(t, sc)
	require.NoError(t, sc.Err())

	require.Len(t, rows, 3)
	assert.Equal(t, "u2_m1", string(rows[0].Key))
	assert.Equal(t, "u3_m2", string(rows[2].Key))
	rating, ok := rows[1].Column("data:rating")
	require.True(t, ok)
	assert.Equal(t, "5", string(rating))
	assert.Equal(t, 2, calls)
}

func TestTable_BoundedScanUsesFilter(t *testing.T) {
	var got *dynamodb.ScanInput
	client := &mockClient{
		ScanFn: func(_ context.Context, in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			got = in
			return &dynamodb.ScanOutput{}, nil
		},
	}

	sc, err := New(client, "ratings", 0).Scan(context.Background(), []byte("u1_"), []byte("u1_~"))
	require.NoError(t, err)
	assert.Empty(t, drain(t, sc))
	require.NoError(t, sc.Err())

	require.NotNil(t, got)
	assert.Nil(t, got.Limit)
	require.NotNil(t, got.FilterExpression)
	assert.Contains(t, *got.FilterExpression, ">=")
	assert.Contains(t, *got.FilterExpression, "<")

	require.NotEmpty(t, got.ExpressionAttributeNames)
	for _, n := range got.ExpressionAttributeNames {
		assert.Equal(t, "row_key", n)
	}

	values := map[string]bool{}
	for _, v := range got.ExpressionAttributeValues {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			values[s.Value] = true
		}
	}
	assert.Equal(t, map[string]bool{"u1_": true, "u1_~": true}, values)
}

func TestKeyRange(t *testing.T) {
	_, ok := keyRange(nil, nil)
	assert.False(t, ok)
	_, ok = keyRange([]byte("a"), nil)
	assert.True(t, ok)
	_, ok = keyRange(nil, []byte("b"))
	assert.True(t, ok)
}

func TestTable_ScanError(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	client := &mockClient{
		ScanFn: func(context.Context, *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			return nil, boom
		},
	}

	sc, err := New(client, "ratings", 0).Scan(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, drain(t, sc))
	assert.ErrorIs(t, sc.Err(), boom)
}

func TestTable_Put(t *testing.T) {
	var got *dynamodb.PutItemInput
	client := &mockClient{
		PutItemFn: func(_ context.Context, in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
			got = in
			return &dynamodb.PutItemOutput{}, nil
		},
	}

	err := New(client, "ratings", 0).Put(context.Background(), wide.Row{
		Key:     []byte("u1_m1"),
		Columns: map[string][]byte{"data:rating": []byte("4.5")},
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ratings", *got.TableName)

	var decoded item
	require.NoError(t, attributevalue.UnmarshalMap(got.Item, &decoded))
	assert.Equal(t, "u1_m1", decoded.RowKey)
	assert.Equal(t, []byte("4.5"), decoded.Cells["data:rating"])
}
