package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/openviking/rowstore/blobstore"
)

// DDBCommitStore implements blobstore.CommitStore with DynamoDB conditional
// writes, giving S3-backed stores the compare-and-swap S3 itself lacks.
//
// Every commit is a new item keyed by generation. A conditional PutItem on
// attribute_not_exists(version) makes exactly one writer win each generation.
//
// Table schema:
//   - Partition key: base_uri (string), the store's s3:// root
//   - Sort key: version (number), the pointer generation
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name rowstore-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	client    DDBClient
	tableName string
	baseURI   string
}

var _ blobstore.CommitStore = (*DDBCommitStore)(nil)

// DDBClient is the subset of the DynamoDB API the commit store uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ErrConcurrentModification is returned when another writer committed first.
var ErrConcurrentModification = blobstore.ErrConcurrentModification

// NewDDBCommitStore creates a commit store. baseURI partitions the table,
// usually Store.URI().
func NewDDBCommitStore(client DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{
		client:    client,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Load returns the highest committed generation.
func (s *DDBCommitStore) Load(ctx context.Context) (blobstore.Pointer, error) {
	resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return blobstore.Pointer{}, fmt.Errorf("query commits: %w", err)
	}
	if len(resp.Items) == 0 {
		return blobstore.Pointer{}, nil
	}
	return decodePointer(resp.Items[0])
}

// Get returns the pointer committed at a specific generation.
func (s *DDBCommitStore) Get(ctx context.Context, generation uint64) (blobstore.Pointer, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(generation),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return blobstore.Pointer{}, fmt.Errorf("get commit %d: %w", generation, err)
	}
	if len(resp.Item) == 0 {
		return blobstore.Pointer{}, blobstore.ErrNotFound
	}
	return decodePointer(resp.Item)
}

// Commit publishes next if no writer has committed since prev.
func (s *DDBCommitStore) Commit(ctx context.Context, prev, next blobstore.Pointer) error {
	if next.Generation != prev.Generation+1 {
		return fmt.Errorf("commit generation %d does not follow %d", next.Generation, prev.Generation)
	}

	cur, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if cur.Generation != prev.Generation {
		return fmt.Errorf("%w: have generation %d, expected %d", ErrConcurrentModification, cur.Generation, prev.Generation)
	}

	item := s.itemKey(next.Generation)
	item["snapshot"] = &types.AttributeValueMemberS{Value: next.Snapshot}
	item["lsn"] = &types.AttributeValueMemberN{Value: strconv.FormatUint(next.LSN, 10)}
	item["rows"] = &types.AttributeValueMemberN{Value: strconv.Itoa(next.Rows)}
	item["created_at"] = &types.AttributeValueMemberS{Value: next.CreatedAt.UTC().Format(time.RFC3339Nano)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("commit generation %d: %w", next.Generation, err)
	}
	return nil
}

// Prune deletes commit items older than keepFrom.
func (s *DDBCommitStore) Prune(ctx context.Context, keepFrom uint64) (int, error) {
	deleted := 0
	var start map[string]types.AttributeValue
	for {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("base_uri = :uri AND version < :keep"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uri":  &types.AttributeValueMemberS{Value: s.baseURI},
				":keep": &types.AttributeValueMemberN{Value: strconv.FormatUint(keepFrom, 10)},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return deleted, fmt.Errorf("query commits: %w", err)
		}
		for _, item := range resp.Items {
			gen, err := numberAttr(item, "version")
			if err != nil {
				return deleted, err
			}
			if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.tableName),
				Key:       s.itemKey(gen),
			}); err != nil {
				return deleted, fmt.Errorf("delete commit %d: %w", gen, err)
			}
			deleted++
		}
		if len(resp.LastEvaluatedKey) == 0 {
			return deleted, nil
		}
		start = resp.LastEvaluatedKey
	}
}

func (s *DDBCommitStore) itemKey(generation uint64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
		"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(generation, 10)},
	}
}

func decodePointer(item map[string]types.AttributeValue) (blobstore.Pointer, error) {
	var p blobstore.Pointer
	var err error
	if p.Generation, err = numberAttr(item, "version"); err != nil {
		return p, err
	}
	if p.LSN, err = numberAttr(item, "lsn"); err != nil {
		return p, err
	}
	rows, err := numberAttr(item, "rows")
	if err != nil {
		return p, err
	}
	p.Rows = int(rows)

	snap, ok := item["snapshot"].(*types.AttributeValueMemberS)
	if !ok {
		return p, errors.New("invalid snapshot attribute in DynamoDB")
	}
	p.Snapshot = snap.Value

	if ts, ok := item["created_at"].(*types.AttributeValueMemberS); ok && ts.Value != "" {
		if p.CreatedAt, err = time.Parse(time.RFC3339Nano, ts.Value); err != nil {
			return p, fmt.Errorf("invalid created_at attribute: %w", err)
		}
	}
	return p, nil
}

func numberAttr(item map[string]types.AttributeValue, name string) (uint64, error) {
	attr, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("invalid %s attribute in DynamoDB", name)
	}
	v, err := strconv.ParseUint(attr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}
