package main

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
)

const (
	pushKindMessage  = "message"
	pushKindReaction = "reaction"
	pushKindCall     = "incoming_call"

	clickActionFlutter = "FLUTTER_NOTIFICATION_CLICK"
)

// PushNotification is one push to a single device token.
type PushNotification struct {
	Kind  string
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// PushSender delivers a notification through one provider and returns the
// provider's message id.
type PushSender interface {
	Send(ctx context.Context, n PushNotification) (string, error)
}

type FCMSender struct {
	client *messaging.Client
}

func (s FCMSender) Send(ctx context.Context, n PushNotification) (string, error) {
	id, err := s.client.Send(ctx, buildFCMMessage(n))
	if err != nil {
		return "", fmt.Errorf("fcm send: %w", err)
	}
	return id, nil
}

func buildFCMMessage(n PushNotification) *messaging.Message {
	message := &messaging.Message{
		Token: n.Token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
		Data: n.Data,
	}

	// Incoming calls must wake the app immediately.
	if n.Kind == pushKindCall {
		message.Android.Priority = "high"
		message.APNS.Headers = map[string]string{"apns-priority": "10"}
		message.APNS.Payload.Aps.ContentAvailable = true
	}

	return message
}
