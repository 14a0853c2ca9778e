package s3

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB mock for testing.
type mockDDBClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue // key -> item

	// conflictNextPut makes the next conditional put fail, simulating
	// a concurrent writer claiming the version first.
	conflictNextPut bool
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{
		items: make(map[string]map[string]types.AttributeValue),
	}
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	baseURI := params.Item["base_uri"].(*types.AttributeValueMemberS).Value
	version := params.Item["version"].(*types.AttributeValueMemberN).Value
	key := baseURI + ":" + version

	// Check conditional expression
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(version)" {
		_, exists := m.items[key]
		if exists || m.conflictNextPut {
			m.conflictNextPut = false
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	m.items[key] = params.Item

	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	baseURI := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value

	var items []map[string]types.AttributeValue

	for _, item := range m.items {
		if item["base_uri"].(*types.AttributeValueMemberS).Value == baseURI {
			items = append(items, item)
		}
	}

	// Version descending, matching ScanIndexForward=false.
	sort.Slice(items, func(i, j int) bool {
		vi := items[i]["version"].(*types.AttributeValueMemberN).Value
		vj := items[j]["version"].(*types.AttributeValueMemberN).Value

		if len(vi) != len(vj) {
			return len(vi) > len(vj)
		}

		return vi > vj
	})

	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}

	return &dynamodb.QueryOutput{Items: items}, nil
}

func TestLatestStore_EmptyTable(t *testing.T) {
	store := NewLatestStore(newMockDDBClient(), "snapshots", "s3://bucket/db1")

	_, _, err := store.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestLatestStore_CommitAndLatest(t *testing.T) {
	store := NewLatestStore(newMockDDBClient(), "snapshots", "s3://bucket/db1")

	v1, err := store.Commit(context.Background(), "snapshots/a.vsnap")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1)

	v2, err := store.Commit(context.Background(), "snapshots/b.vsnap")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v2)

	version, name, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, "snapshots/b.vsnap", name)
}

func TestLatestStore_ConcurrentCommit(t *testing.T) {
	ddb := newMockDDBClient()
	store := NewLatestStore(ddb, "snapshots", "s3://bucket/db1")

	_, err := store.Commit(context.Background(), "snapshots/a.vsnap")
	require.NoError(t, err)

	// A concurrent writer claims the next version between this
	// writer's read and its conditional put.
	ddb.conflictNextPut = true

	_, err = store.Commit(context.Background(), "snapshots/b.vsnap")
	assert.ErrorIs(t, err, ErrConcurrentModification)

	// The retry sees the new latest and succeeds.
	v, err := store.Commit(context.Background(), "snapshots/b.vsnap")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
}

func TestLatestStore_IsolatedByBaseURI(t *testing.T) {
	ddb := newMockDDBClient()
	a := NewLatestStore(ddb, "snapshots", "s3://bucket/db1")
	b := NewLatestStore(ddb, "snapshots", "s3://bucket/db2")

	_, err := a.Commit(context.Background(), "snapshots/a.vsnap")
	require.NoError(t, err)

	_, _, err = b.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}
