package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spacesedan/hottakes/internal/models"
)

// ErrVoteExists signals the at-most-once guard fired at the durable layer.
var ErrVoteExists = errors.New("[ContentStore] vote already recorded")

type voteItem struct {
	TakeUser string            `dynamodbav:"take_user"`
	TakeID   string            `dynamodbav:"take_id"`
	UserID   string            `dynamodbav:"user_id"`
	Choice   models.VoteChoice `dynamodbav:"choice"`
	VotedAt  int64             `dynamodbav:"voted_at"`
}

// RecordVote persists a vote with a conditional put so a (take, user) pair can
// never hold two votes.
func (s *Store) RecordVote(ctx context.Context, vote models.Vote) error {
	item, err := attributevalue.MarshalMap(voteItem{
		TakeUser: models.VoteKey(vote.TakeID, vote.UserID),
		TakeID:   vote.TakeID,
		UserID:   vote.UserID,
		Choice:   vote.Choice,
		VotedAt:  vote.VotedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("[ContentStore] failed to marshal vote: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.votesTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(take_user)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrVoteExists
		}
		return fmt.Errorf("[ContentStore] failed to record vote: %w", err)
	}
	return nil
}

// FindVote returns the vote for (takeID, userID), or nil when none exists.
func (s *Store) FindVote(ctx context.Context, takeID, userID string) (*models.Vote, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.votesTable),
		Key: map[string]types.AttributeValue{
			"take_user": &types.AttributeValueMemberS{Value: models.VoteKey(takeID, userID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[ContentStore] failed to look up vote: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item voteItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("[ContentStore] failed to unmarshal vote: %w", err)
	}
	vote := item.toVote()
	return &vote, nil
}

// DeleteVote removes the vote for (takeID, userID). Deleting an absent vote is
// a no-op.
func (s *Store) DeleteVote(ctx context.Context, takeID, userID string) error {
	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.votesTable),
		Key: map[string]types.AttributeValue{
			"take_user": &types.AttributeValueMemberS{Value: models.VoteKey(takeID, userID)},
		},
	})
	if err != nil {
		return fmt.Errorf("[ContentStore] failed to delete vote: %w", err)
	}
	return nil
}

// VotedTakeIDs lists every take the user has voted on, for session
// initialization.
func (s *Store) VotedTakeIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string

	paginator := dynamodb.NewQueryPaginator(s.db, &dynamodb.QueryInput{
		TableName:              aws.String(s.votesTable),
		IndexName:              aws.String(userVotesIndex),
		KeyConditionExpression: aws.String("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
	})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("[ContentStore] query for user votes failed: %w", err)
		}

		var page []voteItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("[ContentStore] failed to unmarshal vote page: %w", err)
		}
		for _, item := range page {
			ids = append(ids, item.TakeID)
		}
	}

	return ids, nil
}

func (item voteItem) toVote() models.Vote {
	return models.Vote{
		TakeID:  item.TakeID,
		UserID:  item.UserID,
		Choice:  item.Choice,
		VotedAt: time.Unix(item.VotedAt, 0),
	}
}
