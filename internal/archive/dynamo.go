// Package archive mirrors completed exchanges into a DynamoDB table. The
// backend remains the source of truth for conversations; the archive is a
// secondary, fire-and-forget record kept for course analytics and retention.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"
	ttlDuration = 180 * 24 * time.Hour // two semesters of retention
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Exchange is one archived question/answer pair.
type Exchange struct {
	ConversationID string
	Question       string
	Answer         string
	AskedAt        time.Time
}

// Client wraps a DynamoDB table holding archived exchanges.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates an archive Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("archive: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("archive: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// chatPK returns the partition key for a conversation.
func chatPK(conversationID string) string {
	return "CHAT#" + conversationID
}

// msgSK returns the sort key for an exchange at the given instant.
func msgSK(ts time.Time) string {
	return skPrefixMsg + ts.UTC().Format(time.RFC3339Nano)
}

func ttlValue(from time.Time) int64 {
	return from.Add(ttlDuration).Unix()
}

// SaveExchange writes the question/answer pair and refreshes the
// conversation metadata in one transaction.
func (c *Client) SaveExchange(ctx context.Context, conversationID, title, question, answer string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("archive: SaveExchange: conversation id is required")
	}

	ts := now()
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                exchangeItem(conversationID, question, answer, ts),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      metaItem(conversationID, title, ts),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("archive: SaveExchange: %w", err)
	}
	return nil
}

// History queries the archived exchanges for a conversation, oldest first.
func (c *Client) History(ctx context.Context, conversationID string, limit int) ([]Exchange, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: chatPK(conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so LIMIT favors the most recent exchanges.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: History query: %w", err)
	}

	exchanges := make([]Exchange, 0, len(out.Items))
	for _, item := range out.Items {
		ex, err := itemToExchange(item)
		if err != nil {
			return nil, fmt.Errorf("archive: History unmarshal: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	// Reverse to chronological order.
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}

func exchangeItem(conversationID, question, answer string, ts time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: chatPK(conversationID)},
		"SK":             &types.AttributeValueMemberS{Value: msgSK(ts)},
		"conversationId": &types.AttributeValueMemberS{Value: conversationID},
		"question":       &types.AttributeValueMemberS{Value: question},
		"answer":         &types.AttributeValueMemberS{Value: answer},
		"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlValue(ts))},
	}
}

func metaItem(conversationID, title string, ts time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: chatPK(conversationID)},
		"SK":             &types.AttributeValueMemberS{Value: skMeta},
		"conversationId": &types.AttributeValueMemberS{Value: conversationID},
		"title":          &types.AttributeValueMemberS{Value: title},
		"lastActivity":   &types.AttributeValueMemberS{Value: ts.UTC().Format(time.RFC3339)},
		"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlValue(ts))},
	}
}

func itemToExchange(item map[string]types.AttributeValue) (Exchange, error) {
	sk, err := strAttr(item, "SK")
	if err != nil {
		return Exchange{}, err
	}
	conversationID, err := strAttr(item, "conversationId")
	if err != nil {
		return Exchange{}, err
	}
	question, err := strAttr(item, "question")
	if err != nil {
		return Exchange{}, err
	}
	answer, _ := strAttr(item, "answer") // allow empty

	askedAt, _ := time.Parse(time.RFC3339Nano, strings.TrimPrefix(sk, skPrefixMsg))
	return Exchange{
		ConversationID: conversationID,
		Question:       question,
		Answer:         answer,
		AskedAt:        askedAt,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("archive: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("archive: attribute %q is not a string", key)
	}
	return s.Value, nil
}

// seam for deterministic tests
var now = func() time.Time { return time.Now().UTC() }
