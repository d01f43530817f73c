// Package storage archives campaign activity to AWS: every ledger event is
// mirrored to DynamoDB and run reports are written to S3.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/audience-dispatch/internal/domain"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// AWSConfig selects the table, bucket and retention.
type AWSConfig struct {
	Region  string
	Profile string
	Table   string
	Bucket  string
	TTL     time.Duration
}

// AWSStorage provides AWS-backed storage using DynamoDB and S3.
type AWSStorage struct {
	dynamoDB  dynamoAPI
	s3Client  s3API
	tableName string
	bucket    string
	ttl       time.Duration
	now       func() time.Time
}

// EventItem is the DynamoDB shape of a campaign event.
type EventItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	EventID   string `dynamodbav:"EventID"`
	Type      string `dynamodbav:"Type"`
	Detail    string `dynamodbav:"Detail"`
	Timestamp string `dynamodbav:"Timestamp"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// NewAWSStorage loads AWS config and creates the DynamoDB and S3 clients.
func NewAWSStorage(ctx context.Context, cfg AWSConfig) (*AWSStorage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return newAWSStorage(dynamodb.NewFromConfig(awsCfg), s3.NewFromConfig(awsCfg), cfg), nil
}

func newAWSStorage(db dynamoAPI, s3c s3API, cfg AWSConfig) *AWSStorage {
	if cfg.TTL <= 0 {
		cfg.TTL = 90 * 24 * time.Hour
	}
	return &AWSStorage{
		dynamoDB:  db,
		s3Client:  s3c,
		tableName: cfg.Table,
		bucket:    cfg.Bucket,
		ttl:       cfg.TTL,
		now:       time.Now,
	}
}

// Fixed width so sort keys order lexically by time.
const sortKeyLayout = "2006-01-02T15:04:05.000000Z"

func campaignPK(campaignID string) string { return "CAMPAIGN#" + campaignID }

// SaveEvent mirrors e into DynamoDB. The sort key orders a campaign's
// events by time and stays unique for events sharing a timestamp.
func (s *AWSStorage) SaveEvent(ctx context.Context, e domain.CampaignEvent) error {
	item := EventItem{
		PK:        campaignPK(e.CampaignID),
		SK:        e.CreatedAt.UTC().Format(sortKeyLayout) + "#" + e.ID,
		EventID:   e.ID,
		Type:      string(e.Type),
		Detail:    e.Detail,
		Timestamp: e.CreatedAt.UTC().Format(time.RFC3339),
		TTL:       s.now().Add(s.ttl).Unix(),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	_, err = s.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

// GetEvents returns a campaign's archived events, newest first.
func (s *AWSStorage) GetEvents(ctx context.Context, campaignID string, limit int) ([]domain.CampaignEvent, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: campaignPK(campaignID)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}
	result, err := s.dynamoDB.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}

	var items []EventItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling items: %w", err)
	}

	out := make([]domain.CampaignEvent, 0, len(items))
	for _, it := range items {
		ts, _ := time.Parse(time.RFC3339, it.Timestamp)
		out = append(out, domain.CampaignEvent{
			ID:         it.EventID,
			CampaignID: campaignID,
			Type:       domain.CampaignEventType(it.Type),
			Detail:     it.Detail,
			CreatedAt:  ts,
		})
	}
	return out, nil
}

// SaveToS3 writes data as indented JSON under key.
func (s *AWSStorage) SaveToS3(ctx context.Context, key string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling data: %w", err)
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(jsonData),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting object to S3: %w", err)
	}
	return nil
}

// GetFromS3 decodes the JSON object at key into target.
func (s *AWSStorage) GetFromS3(ctx context.Context, key string, target interface{}) error {
	result, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("getting object from S3: %w", err)
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("reading object body: %w", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("unmarshaling data: %w", err)
	}
	return nil
}
