package main

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository is the document store the handlers read users and calls from.
type Repository interface {
	getUserById(ctx context.Context, userId string) (UserRecord, error)
	getCallById(ctx context.Context, callId string) (CallRecord, error)
	setCallToken(ctx context.Context, callId string, token string) error
}

type DatabaseService struct {
	repository Repository
}

func (db DatabaseService) getUserById(ctx context.Context, userId string) (UserRecord, error) {
	if userId == "" {
		return UserRecord{}, ErrNotFound
	}
	return db.repository.getUserById(ctx, userId)
}

func (db DatabaseService) getCallById(ctx context.Context, callId string) (CallRecord, error) {
	if callId == "" {
		return CallRecord{}, ErrNotFound
	}
	return db.repository.getCallById(ctx, callId)
}

func (db DatabaseService) setCallToken(ctx context.Context, callId string, token string) error {
	if callId == "" {
		return ErrNotFound
	}
	return db.repository.setCallToken(ctx, callId, token)
}
