package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// usernameIndex is the secondary index on the username attribute.
const usernameIndex = "username-index"

// dynamoItem is the physical shape of a record in the users table.
// Permissions are stored as a comma-joined string; the adapter converts to
// and from the []string representation at the model boundary. omitempty keeps
// empty-valued attributes out of the table.
type dynamoItem struct {
	ID           int    `dynamodbav:"id"`
	Username     string `dynamodbav:"username,omitempty"`
	PasswordHash string `dynamodbav:"password_hash,omitempty"`
	Role         string `dynamodbav:"role,omitempty"`
	Permissions  string `dynamodbav:"permissions,omitempty"`
	Name         string `dynamodbav:"name,omitempty"`
	Email        string `dynamodbav:"email,omitempty"`
	Phone        string `dynamodbav:"phone,omitempty"`
	Website      string `dynamodbav:"website,omitempty"`
}

func encodePermissions(permissions []string) string {
	return strings.Join(permissions, ",")
}

func decodePermissions(encoded string) []string {
	if encoded == "" {
		return nil
	}
	return strings.Split(encoded, ",")
}

func toDynamoItem(item *UserItem) *dynamoItem {
	return &dynamoItem{
		ID:           item.ID,
		Username:     item.Username,
		PasswordHash: item.PasswordHash,
		Role:         item.Role,
		Permissions:  encodePermissions(item.Permissions),
		Name:         item.Name,
		Email:        item.Email,
		Phone:        item.Phone,
		Website:      item.Website,
	}
}

func (d *dynamoItem) toUserItem() *UserItem {
	return &UserItem{
		ID:           d.ID,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		Role:         d.Role,
		Permissions:  decodePermissions(d.Permissions),
		Name:         d.Name,
		Email:        d.Email,
		Phone:        d.Phone,
		Website:      d.Website,
	}
}

// DynamoConfig holds the settings needed to reach the DynamoDB users table.
type DynamoConfig struct {
	Table           string
	Region          string
	BaseEndpoint    string
	AccessKeyID     string
	SecretAccessKey string
}

// DynamoStore implements Store against a DynamoDB table with an integer id
// primary key and a username secondary index.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoStore(ctx context.Context, cfg DynamoConfig) (*DynamoStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config error: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
	})

	return &DynamoStore{client: client, table: cfg.Table}, nil
}

func idKey(id int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberN{Value: strconv.Itoa(id)},
	}
}

func (s *DynamoStore) Get(ctx context.Context, id int) (*UserItem, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       idKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get error: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	item := &dynamoItem{}
	if err := attributevalue.UnmarshalMap(out.Item, item); err != nil {
		return nil, fmt.Errorf("dynamodb unmarshal error: %w", err)
	}
	return item.toUserItem(), nil
}

func (s *DynamoStore) QueryByUsername(ctx context.Context, username string) (*UserItem, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(usernameIndex),
		KeyConditionExpression: aws.String("username = :username"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":username": &types.AttributeValueMemberS{Value: username},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb query error: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}

	item := &dynamoItem{}
	if err := attributevalue.UnmarshalMap(out.Items[0], item); err != nil {
		return nil, fmt.Errorf("dynamodb unmarshal error: %w", err)
	}
	return item.toUserItem(), nil
}

func (s *DynamoStore) Put(ctx context.Context, item *UserItem) error {
	av, err := attributevalue.MarshalMap(toDynamoItem(item))
	if err != nil {
		return fmt.Errorf("dynamodb marshal error: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put error: %w", err)
	}
	return nil
}

func (s *DynamoStore) Update(ctx context.Context, id int, attrs map[string]any) (map[string]any, error) {
	if len(attrs) == 0 {
		return map[string]any{}, nil
	}

	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	names := make(map[string]string, len(keys))
	values := make(map[string]types.AttributeValue, len(keys))

	for _, key := range keys {
		value := attrs[key]
		if permissions, ok := value.([]string); ok {
			value = encodePermissions(permissions)
		}
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("dynamodb marshal error: %w", err)
		}
		clauses = append(clauses, fmt.Sprintf("#%s = :%s", key, key))
		names["#"+key] = key
		values[":"+key] = av
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       idKey(id),
		UpdateExpression:          aws.String("SET " + strings.Join(clauses, ", ")),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dynamodb update error: %w", err)
	}

	return decodeAttributes(out.Attributes), nil
}

// decodeAttributes converts returned attribute values into the model-level
// representation, including the permissions set.
func decodeAttributes(avs map[string]types.AttributeValue) map[string]any {
	attrs := make(map[string]any, len(avs))
	for key, av := range avs {
		switch value := av.(type) {
		case *types.AttributeValueMemberS:
			if key == "permissions" {
				attrs[key] = decodePermissions(value.Value)
			} else {
				attrs[key] = value.Value
			}
		case *types.AttributeValueMemberN:
			if n, err := strconv.Atoi(value.Value); err == nil {
				attrs[key] = n
			} else {
				attrs[key] = value.Value
			}
		}
	}
	return attrs
}

func (s *DynamoStore) Delete(ctx context.Context, id int) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       idKey(id),
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete error: %w", err)
	}
	return nil
}

func (s *DynamoStore) Scan(ctx context.Context) ([]*UserItem, error) {
	var items []*UserItem
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan error: %w", err)
		}

		for _, av := range out.Items {
			item := &dynamoItem{}
			if err := attributevalue.UnmarshalMap(av, item); err != nil {
				return nil, fmt.Errorf("dynamodb unmarshal error: %w", err)
			}
			if item.ID == counterID {
				continue
			}
			items = append(items, item.toUserItem())
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return items, nil
}

func (s *DynamoStore) NextID(ctx context.Context) (int, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              idKey(counterID),
		UpdateExpression: aws.String("SET current_count = if_not_exists(current_count, :start) + :inc"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":start": &types.AttributeValueMemberN{Value: "0"},
			":inc":   &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("dynamodb counter error: %w", err)
	}

	counter, ok := out.Attributes["current_count"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("dynamodb counter error: unexpected attribute type")
	}
	return strconv.Atoi(counter.Value)
}
