package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type FirestoreRepository struct {
	client *firestore.Client
}

func (db FirestoreRepository) getUserById(ctx context.Context, userId string) (UserRecord, error) {
	snap, err := db.client.Collection(pathUsers).Doc(userId).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return UserRecord{}, ErrNotFound
	}
	if err != nil {
		return UserRecord{}, fmt.Errorf("get user %s: %w", userId, err)
	}

	var user UserRecord
	if err := snap.DataTo(&user); err != nil {
		return UserRecord{}, fmt.Errorf("decode user %s: %w", userId, err)
	}
	user.Uid = userId

	return user, nil
}

func (db FirestoreRepository) getCallById(ctx context.Context, callId string) (CallRecord, error) {
	snap, err := db.client.Collection(pathCalls).Doc(callId).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return CallRecord{}, ErrNotFound
	}
	if err != nil {
		return CallRecord{}, fmt.Errorf("get call %s: %w", callId, err)
	}

	var call CallRecord
	if err := snap.DataTo(&call); err != nil {
		return CallRecord{}, fmt.Errorf("decode call %s: %w", callId, err)
	}
	call.Id = callId

	return call, nil
}

// setCallToken patches only the token field; Update fails on a missing document.
func (db FirestoreRepository) setCallToken(ctx context.Context, callId string, token string) error {
	_, err := db.client.Collection(pathCalls).Doc(callId).Update(ctx, []firestore.Update{
		{Path: "token", Value: token},
	})
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("set token on call %s: %w", callId, err)
	}
	return nil
}
