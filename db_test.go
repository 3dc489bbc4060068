package main

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/kjk/betterguid"
)

// localDynamoDbService needs a DynamoDB Local endpoint, e.g.
// SIMPLECHAT_TEST_DYNAMODB_ENDPOINT=http://localhost:8000.
func localDynamoDbService(t *testing.T) (DatabaseService, *dynamodb.Client) {
	endpoint := os.Getenv("SIMPLECHAT_TEST_DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("requires SIMPLECHAT_TEST_DYNAMODB_ENDPOINT")
	}

	ctx := context.TODO()
	client, err := configureDynamoDbClient(ctx, Config{DynamoDBRegion: "us-east-1", DynamoDBEndpoint: endpoint})
	if err != nil {
		t.Fatal(err)
	}
	if err := createUserTable(ctx, client, testLogger()); err != nil {
		t.Fatal(err)
	}
	if err := createCallTable(ctx, client, testLogger()); err != nil {
		t.Fatal(err)
	}

	return DatabaseService{repository: DynamoDbRepository{client: client}}, client
}

func putItem(t *testing.T, client *dynamodb.Client, table string, record interface{}) {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.PutItem(context.TODO(), &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGetUserById(t *testing.T) {
	service, client := localDynamoDbService(t)

	user := UserRecord{
		Uid:         betterguid.New(),
		DisplayName: "Ana",
		FcmToken:    "token-ana",
	}
	putItem(t, client, DDB_TABLE_USER, user)

	got, err := service.getUserById(context.TODO(), user.Uid)
	if err != nil {
		t.Error(err)
	}

	if got != user {
		t.Errorf("got %+v, want %+v", got, user)
	}
}

func TestGetUserByIdNotFound(t *testing.T) {
	service, _ := localDynamoDbService(t)

	_, err := service.getUserById(context.TODO(), betterguid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSetCallToken(t *testing.T) {
	service, client := localDynamoDbService(t)

	call := CallRecord{
		Id:          betterguid.New(),
		CallerId:    "u1",
		ReceiverId:  "u2",
		ChannelName: "room-1",
	}
	putItem(t, client, DDB_TABLE_CALL, call)

	if err := service.setCallToken(context.TODO(), call.Id, "rtc-token"); err != nil {
		t.Error(err)
	}

	got, err := service.getCallById(context.TODO(), call.Id)
	if err != nil {
		t.Error(err)
	}

	if got.Token != "rtc-token" || got.ChannelName != "room-1" {
		t.Fail()
	}
}

func TestSetCallTokenMissingCall(t *testing.T) {
	service, _ := localDynamoDbService(t)

	err := service.setCallToken(context.TODO(), betterguid.New(), "rtc-token")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
