package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/spacesedan/hottakes/internal/models"
	"github.com/spacesedan/hottakes/internal/utils"
)

const (
	categoryIndexName = "category-index"
	userVotesIndex    = "user-index"

	// DynamoDB BatchGetItem allows more, but the upstream contract batches
	// id lookups to 10 per call.
	batchGetChunkSize = 10

	queryPageSize = 50
)

var ErrTakeExists = errors.New("[ContentStore] take already exists")

// Store is the durable source of truth for published takes and votes.
type Store struct {
	db         *dynamodb.Client
	takesTable string
	votesTable string
}

func New(db *dynamodb.Client, takesTable, votesTable string) *Store {
	return &Store{
		db:         db,
		takesTable: takesTable,
		votesTable: votesTable,
	}
}

// Insert writes a new take, assigning it a durable id. The conditional put
// guards against id collisions.
func (s *Store) Insert(ctx context.Context, take models.Take) (string, error) {
	take.ID = uuid.NewString()

	item, err := attributevalue.MarshalMap(take)
	if err != nil {
		return "", fmt.Errorf("[ContentStore] failed to marshal take: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.takesTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return "", ErrTakeExists
		}
		return "", fmt.Errorf("[ContentStore] failed to insert take: %w", err)
	}

	return take.ID, nil
}

// pageFetch retrieves one server page starting after startKey.
type pageFetch func(ctx context.Context, startKey map[string]types.AttributeValue) ([]models.Take, map[string]types.AttributeValue, error)

// QueryApproved returns up to limit approved takes for a category ("all" scans
// every category), skipping any id in exclude. The returned cursor resumes the
// scan; hasMore reports whether unserved data remains past the returned slice.
func (s *Store) QueryApproved(ctx context.Context, category string, exclude map[string]struct{}, limit int, cursor string) ([]models.Take, string, bool, error) {
	fetch := func(ctx context.Context, startKey map[string]types.AttributeValue) ([]models.Take, map[string]types.AttributeValue, error) {
		items, lastKey, err := s.queryApprovedPage(ctx, category, startKey)
		if err != nil {
			return nil, nil, err
		}
		var page []models.Take
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return nil, nil, fmt.Errorf("[ContentStore] failed to unmarshal takes page: %w", err)
		}
		return page, lastKey, nil
	}

	takes, next, hasMore, err := collectApproved(ctx, category, exclude, limit, cursor, fetch)
	if err != nil {
		return nil, "", false, err
	}

	slog.Debug("[ContentStore] Approved takes fetched",
		slog.String("category", category),
		slog.Int("count", len(takes)))
	return takes, next, hasMore, nil
}

// collectApproved accumulates server pages until limit is reached or the data
// runs out. When the limit cuts a page short, the resume cursor is derived
// from the last item actually returned, so items later in that page are served
// on the next call instead of being jumped over by the page's own last key.
func collectApproved(ctx context.Context, category string, exclude map[string]struct{}, limit int, cursor string, fetch pageFetch) ([]models.Take, string, bool, error) {
	startKey, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", false, err
	}

	var takes []models.Take

	for len(takes) < limit {
		page, lastKey, err := fetch(ctx, startKey)
		if err != nil {
			return nil, "", false, err
		}

		for i, t := range page {
			if _, skip := exclude[t.ID]; skip {
				continue
			}
			takes = append(takes, t)
			if len(takes) < limit {
				continue
			}

			if i < len(page)-1 || lastKey != nil {
				next, err := encodeCursor(resumeKeyFor(category, t))
				if err != nil {
					return nil, "", false, err
				}
				return takes, next, true, nil
			}
			return takes, "", false, nil
		}

		if lastKey == nil {
			return takes, "", false, nil
		}
		startKey = lastKey
	}

	return takes, "", false, nil
}

// resumeKeyFor rebuilds the exclusive start key pointing at a served item. The
// category index query needs the index key attributes alongside the table key;
// the all-categories scan needs only the table key.
func resumeKeyFor(category string, t models.Take) map[string]types.AttributeValue {
	key := map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: t.ID},
	}
	if category != models.CategoryAll {
		key["category"] = &types.AttributeValueMemberS{Value: t.Category}
		key["created_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(t.CreatedAt.Unix(), 10)}
	}
	return key
}

func (s *Store) queryApprovedPage(ctx context.Context, category string, startKey map[string]types.AttributeValue) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
	if category == models.CategoryAll {
		out, err := s.db.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.takesTable),
			FilterExpression:          aws.String("#st = :approved"),
			ExpressionAttributeNames:  map[string]string{"#st": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":approved": &types.AttributeValueMemberS{Value: string(models.StatusApproved)}},
			Limit:                     aws.Int32(queryPageSize),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("[ContentStore] scan for approved takes failed: %w", err)
		}
		return out.Items, out.LastEvaluatedKey, nil
	}

	out, err := s.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.takesTable),
		IndexName:              aws.String(categoryIndexName),
		KeyConditionExpression: aws.String("category = :c"),
		FilterExpression:       aws.String("#st = :approved"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":        &types.AttributeValueMemberS{Value: category},
			":approved": &types.AttributeValueMemberS{Value: string(models.StatusApproved)},
		},
		// Newest first keeps fresh content at the top of the feed.
		ScanIndexForward:  aws.Bool(false),
		Limit:             aws.Int32(queryPageSize),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("[ContentStore] query for approved takes failed: %w", err)
	}
	return out.Items, out.LastEvaluatedKey, nil
}

// RecentTakes returns the newest approved takes in a category, used as the
// comparison set for uniqueness checks.
func (s *Store) RecentTakes(ctx context.Context, category string, limit int) ([]models.Take, error) {
	takes, _, _, err := s.QueryApproved(ctx, category, nil, limit, "")
	return takes, err
}

// GetTakesByIDs fetches takes by id, chunked to the provider-side batch limit.
func (s *Store) GetTakesByIDs(ctx context.Context, ids []string) ([]models.Take, error) {
	var takes []models.Take

	for _, chunk := range utils.ChunkStrings(ids, batchGetChunkSize) {
		keys := make([]map[string]types.AttributeValue, 0, len(chunk))
		for _, id := range chunk {
			keys = append(keys, map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: id},
			})
		}

		out, err := s.db.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				s.takesTable: {Keys: keys},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("[ContentStore] batch get takes failed: %w", err)
		}

		var page []models.Take
		if err := attributevalue.UnmarshalListOfMaps(out.Responses[s.takesTable], &page); err != nil {
			return nil, fmt.Errorf("[ContentStore] failed to unmarshal batched takes: %w", err)
		}
		takes = append(takes, page...)
	}

	return takes, nil
}

// IncrementVotes applies delta (+1 or -1) to the chosen counter and keeps
// total_votes equal to hot+not. Decrements are conditioned so counters never
// go negative.
func (s *Store) IncrementVotes(ctx context.Context, takeID string, choice models.VoteChoice, delta int) error {
	counter := "hot_votes"
	if choice == models.VoteNot {
		counter = "not_votes"
	}

	condition := "attribute_exists(id)"
	values := map[string]types.AttributeValue{
		":d": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", delta)},
	}
	if delta < 0 {
		condition = fmt.Sprintf("attribute_exists(id) AND %s >= :abs", counter)
		values[":abs"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", -delta)}
	}

	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.takesTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: takeID},
		},
		UpdateExpression:          aws.String(fmt.Sprintf("ADD %s :d, total_votes :d", counter)),
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("[ContentStore] failed to update vote counters for %s: %w", takeID, err)
	}
	return nil
}

func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	if key == nil {
		return "", nil
	}
	var plain map[string]any
	if err := attributevalue.UnmarshalMap(key, &plain); err != nil {
		return "", fmt.Errorf("[ContentStore] failed to decode pagination key: %w", err)
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("[ContentStore] failed to encode cursor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("[ContentStore] invalid cursor: %w", err)
	}
	var plain map[string]any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, fmt.Errorf("[ContentStore] invalid cursor payload: %w", err)
	}
	key, err := attributevalue.MarshalMap(plain)
	if err != nil {
		return nil, fmt.Errorf("[ContentStore] failed to rebuild pagination key: %w", err)
	}
	return key, nil
}
