package infra

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pyama86/feedback-control/domain/model"
)

type DynamoDBOptions struct {
	TablePrefix       string
	ResponseTableName string
	// ローカルの DynamoDB を使う場合はテーブルも作る
	Local    bool
	Endpoint string
}

func (o DynamoDBOptions) responseTable() string {
	if o.ResponseTableName != "" {
		return o.ResponseTableName
	}
	prefix := o.TablePrefix
	if prefix == "" {
		prefix = "feedback_control"
	}
	return prefix + "_response"
}

type DynamoDB struct {
	db                *dynamodb.Client
	responseTableName string
}

func NewDynamoDB(opts DynamoDBOptions) (*DynamoDB, error) {
	var db *dynamodb.Client
	if opts.Local {
		cfg, err := config.LoadDefaultConfig(context.TODO(),
			config.WithRegion("dummy"),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "dummy")),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %v", err)
		}

		endpoint := opts.Endpoint
		if endpoint == "" {
			endpoint = "http://localhost:8000"
		}
		db = dynamodb.NewFromConfig(cfg,
			func(o *dynamodb.Options) {
				o.BaseEndpoint = aws.String(endpoint)
			},
		)
	} else {
		cfg, err := config.LoadDefaultConfig(context.TODO())
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %v", err)
		}

		db = dynamodb.NewFromConfig(cfg)
	}
	d := &DynamoDB{
		db:                db,
		responseTableName: opts.responseTable(),
	}
	if opts.Local {
		if err := d.EnsureTable(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

const (
	waitInterval = 2 * time.Second // ポーリング間隔
	maxRetries   = 30              // 最大リトライ回数 (30回 = 約1分)
)

func (d *DynamoDB) EnsureTable() error {
	_, err := d.db.DescribeTable(context.TODO(), &dynamodb.DescribeTableInput{
		TableName: aws.String(d.responseTableName),
	})
	if err == nil {
		// テーブルが既に存在する
		return nil
	}

	if err := d.createTable(); err != nil {
		return err
	}

	// テーブルがACTIVEになるまで待機
	for i := 0; i < maxRetries; i++ {
		out, err := d.db.DescribeTable(context.TODO(), &dynamodb.DescribeTableInput{
			TableName: aws.String(d.responseTableName),
		})
		if err != nil {
			return fmt.Errorf("failed to describe table %s: %v", d.responseTableName, err)
		}

		if out.Table.TableStatus == types.TableStatusActive {
			return nil
		}

		time.Sleep(waitInterval)
	}

	return fmt.Errorf("table %s creation timed out", d.responseTableName)
}

func (d *DynamoDB) createTable() error {
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(d.responseTableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("bot_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("response_key"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("feedback_id"), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("bot_id"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("response_key"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String("BotIdFeedbackIndex"),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("bot_id"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("feedback_id"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
				ProvisionedThroughput: &types.ProvisionedThroughput{
					ReadCapacityUnits:  aws.Int64(5),
					WriteCapacityUnits: aws.Int64(5),
				},
			},
		},
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(5),
			WriteCapacityUnits: aws.Int64(5),
		},
	}

	if _, err := d.db.CreateTable(context.TODO(), input); err != nil {
		return fmt.Errorf("failed to create table %s: %v", d.responseTableName, err)
	}
	return nil
}

// ソートキー。回答日時の順に並ぶ
func responseKey(r *model.Response) string {
	return fmt.Sprintf("%s#%06d", r.RespondedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"), r.FeedbackID)
}

func (d *DynamoDB) SaveResponse(response *model.Response) error {
	if response.CreatedAt.IsZero() {
		response.CreatedAt = timeNow()
	}
	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.responseTableName),
		Item: map[string]types.AttributeValue{
			"bot_id":        &types.AttributeValueMemberS{Value: response.BotID},
			"response_key":  &types.AttributeValueMemberS{Value: responseKey(response)},
			"feedback_id":   &types.AttributeValueMemberN{Value: strconv.Itoa(response.FeedbackID)},
			"customer_name": &types.AttributeValueMemberS{Value: response.CustomerName},
			"status":        &types.AttributeValueMemberS{Value: response.Status},
			"text":          &types.AttributeValueMemberS{Value: response.Text},
			"responder_id":  &types.AttributeValueMemberS{Value: response.ResponderID},
			"responded_at":  &types.AttributeValueMemberS{Value: response.RespondedAt.Format(time.RFC3339Nano)},
			"created_at":    &types.AttributeValueMemberS{Value: response.CreatedAt.Format(time.RFC3339)},
		},
	}

	_, err := d.db.PutItem(context.TODO(), input)
	return err
}

func (d *DynamoDB) GetLatestResponses(botID string) ([]model.Response, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.responseTableName),
		KeyConditionExpression: aws.String("bot_id = :bot_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":bot_id": &types.AttributeValueMemberS{Value: botID},
		},
		ScanIndexForward: aws.Bool(false), // 降順（最新の回答から取得）
		Limit:            aws.Int32(latestResponsesLimit),
	}

	result, err := d.db.Query(context.TODO(), input)
	if err != nil {
		return nil, err
	}

	responses, err := decodeResponses(result.Items)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(responses, func(i, j int) bool {
		return responses[i].RespondedAt.After(responses[j].RespondedAt)
	})
	return responses, nil
}

func (d *DynamoDB) GetFeedbackResponses(botID string, feedbackID int) ([]model.Response, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.responseTableName),
		IndexName:              aws.String("BotIdFeedbackIndex"),
		KeyConditionExpression: aws.String("bot_id = :bot_id AND feedback_id = :feedback_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":bot_id":      &types.AttributeValueMemberS{Value: botID},
			":feedback_id": &types.AttributeValueMemberN{Value: strconv.Itoa(feedbackID)},
		},
	}

	result, err := d.db.Query(context.TODO(), input)
	if err != nil {
		return nil, err
	}

	responses, err := decodeResponses(result.Items)
	if err != nil {
		return nil, err
	}
	// GSI のソートキーは feedback_id なのでここで並べる
	sort.SliceStable(responses, func(i, j int) bool {
		return responses[i].RespondedAt.Before(responses[j].RespondedAt)
	})
	return responses, nil
}

func decodeResponses(items []map[string]types.AttributeValue) ([]model.Response, error) {
	var responses []model.Response
	for _, item := range items {
		respondedAtStr := getStringValue(item, "responded_at")
		if respondedAtStr == "" {
			continue
		}
		respondedAt, err := time.Parse(time.RFC3339Nano, respondedAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse responded_at (%s): %v", respondedAtStr, err)
		}

		var createdAt time.Time
		if s := getStringValue(item, "created_at"); s != "" {
			createdAt, err = time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("failed to parse created_at (%s): %v", s, err)
			}
		}

		feedbackID, err := getNumberValue(item, "feedback_id")
		if err != nil {
			return nil, fmt.Errorf("failed to parse feedback_id: %v", err)
		}

		responses = append(responses, model.Response{
			BotID:        getStringValue(item, "bot_id"),
			FeedbackID:   feedbackID,
			CustomerName: getStringValue(item, "customer_name"),
			Status:       getStringValue(item, "status"),
			Text:         getStringValue(item, "text"),
			ResponderID:  getStringValue(item, "responder_id"),
			RespondedAt:  respondedAt,
			CreatedAt:    createdAt,
		})
	}
	return responses, nil
}

func getStringValue(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func getNumberValue(item map[string]types.AttributeValue, key string) (int, error) {
	if v, ok := item[key].(*types.AttributeValueMemberN); ok {
		return strconv.Atoi(v.Value)

	}
	return 0, fmt.Errorf("failed to parse %s", key)
}
