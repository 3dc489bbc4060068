package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

type DynamoDbRepository struct {
	client *dynamodb.Client
}

const (
	DDB_TABLE_USER string = "User"
	DDB_TABLE_CALL string = "Call"
)

func tableExists(ctx context.Context, d *dynamodb.Client, name string) (bool, error) {
	tables, err := d.ListTables(ctx, &dynamodb.ListTablesInput{})
	if err != nil {
		return false, fmt.Errorf("list tables: %w", err)
	}
	for _, n := range tables.TableNames {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// createTable creates a pay-per-request table keyed by a single string hash
// key and waits for it to become active. Existing tables are left untouched.
func createTable(ctx context.Context, d *dynamodb.Client, logger zerolog.Logger, name string, hashKey string) error {
	exists, err := tableExists(ctx, d, name)
	if err != nil {
		return err
	}
	if exists {
		logger.Debug().Str("table", name).Msg("table already exists")
		return nil
	}

	_, err = d.CreateTable(ctx, &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{{
			AttributeName: aws.String(hashKey),
			AttributeType: types.ScalarAttributeTypeS,
		}},
		KeySchema: []types.KeySchemaElement{{
			AttributeName: aws.String(hashKey),
			KeyType:       types.KeyTypeHash,
		}},
		TableName:   aws.String(name),
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(d)
	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(name)}, 5*time.Minute)
	if err != nil {
		return fmt.Errorf("wait for table %s: %w", name, err)
	}

	logger.Info().Str("table", name).Msg("created table")
	return nil
}

func createUserTable(ctx context.Context, d *dynamodb.Client, logger zerolog.Logger) error {
	return createTable(ctx, d, logger, DDB_TABLE_USER, "userId")
}

func createCallTable(ctx context.Context, d *dynamodb.Client, logger zerolog.Logger) error {
	return createTable(ctx, d, logger, DDB_TABLE_CALL, "callId")
}

func (db DynamoDbRepository) getUserById(ctx context.Context, userId string) (UserRecord, error) {
	keyEx := expression.Key("userId").Equal(expression.Value(userId))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return UserRecord{}, fmt.Errorf("build user query: %w", err)
	}

	response, err := db.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(DDB_TABLE_USER),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		KeyConditionExpression:    expr.KeyCondition(),
	})
	if err != nil {
		return UserRecord{}, fmt.Errorf("query user %s: %w", userId, err)
	}

	var users []UserRecord
	if err := attributevalue.UnmarshalListOfMaps(response.Items, &users); err != nil {
		return UserRecord{}, fmt.Errorf("decode user %s: %w", userId, err)
	}
	if len(users) == 0 {
		return UserRecord{}, ErrNotFound
	}

	return users[0], nil
}

func (db DynamoDbRepository) getCallById(ctx context.Context, callId string) (CallRecord, error) {
	response, err := db.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(DDB_TABLE_CALL),
		Key: map[string]types.AttributeValue{
			"callId": &types.AttributeValueMemberS{Value: callId},
		},
	})
	if err != nil {
		return CallRecord{}, fmt.Errorf("get call %s: %w", callId, err)
	}
	if len(response.Item) == 0 {
		return CallRecord{}, ErrNotFound
	}

	var call CallRecord
	if err := attributevalue.UnmarshalMap(response.Item, &call); err != nil {
		return CallRecord{}, fmt.Errorf("decode call %s: %w", callId, err)
	}

	return call, nil
}

// setCallToken only updates an existing call item.
func (db DynamoDbRepository) setCallToken(ctx context.Context, callId string, token string) error {
	update := expression.Set(expression.Name("token"), expression.Value(token))
	condition := expression.AttributeExists(expression.Name("callId"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	if err != nil {
		return fmt.Errorf("build call update: %w", err)
	}

	_, err = db.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(DDB_TABLE_CALL),
		Key: map[string]types.AttributeValue{
			"callId": &types.AttributeValueMemberS{Value: callId},
		},
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
	})

	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("set token on call %s: %w", callId, err)
	}

	return nil
}
