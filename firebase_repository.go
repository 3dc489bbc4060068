package main

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"
)

// FirebaseRepository reads users and calls from the Realtime Database,
// laid out as /users/{uid} and /calls/{callId}.
type FirebaseRepository struct {
	client *db.Client
}

func (db FirebaseRepository) getUserById(ctx context.Context, userId string) (UserRecord, error) {
	var user *UserRecord
	if err := db.client.NewRef(pathUsers).Child(userId).Get(ctx, &user); err != nil {
		return UserRecord{}, fmt.Errorf("get user %s: %w", userId, err)
	}
	if user == nil {
		return UserRecord{}, ErrNotFound
	}
	user.Uid = userId

	return *user, nil
}

func (db FirebaseRepository) getCallById(ctx context.Context, callId string) (CallRecord, error) {
	var call *CallRecord
	if err := db.client.NewRef(pathCalls).Child(callId).Get(ctx, &call); err != nil {
		return CallRecord{}, fmt.Errorf("get call %s: %w", callId, err)
	}
	if call == nil {
		return CallRecord{}, ErrNotFound
	}
	call.Id = callId

	return *call, nil
}

func (db FirebaseRepository) setCallToken(ctx context.Context, callId string, token string) error {
	if _, err := db.getCallById(ctx, callId); err != nil {
		return err
	}

	ref := db.client.NewRef(pathCalls).Child(callId)
	if err := ref.Update(ctx, map[string]interface{}{"token": token}); err != nil {
		return fmt.Errorf("set token on call %s: %w", callId, err)
	}

	return nil
}
