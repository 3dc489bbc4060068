package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
)

type outcome string

const (
	outcomeSent       outcome = "sent"
	outcomeFailed     outcome = "failed"
	outcomeSuppressed outcome = "suppressed"
)

// NotificationService routes a push to the recipient's provider. Delivery is
// best-effort: failures are logged and counted, never retried or returned.
type NotificationService struct {
	senders map[string]PushSender
	logger  zerolog.Logger
}

func NewNotificationService(fcm PushSender, apns PushSender, logger zerolog.Logger) *NotificationService {
	senders := map[string]PushSender{pushProviderFCM: fcm}
	if apns != nil {
		senders[pushProviderAPNS] = apns
	}
	return &NotificationService{
		senders: senders,
		logger:  logger.With().Str("component", "notification_service").Logger(),
	}
}

func (ns *NotificationService) dispatch(ctx context.Context, recipient UserRecord, n PushNotification) outcome {
	provider := recipient.PushProvider
	if provider == "" {
		provider = pushProviderFCM
	}

	log := ns.logger.With().Str("kind", n.Kind).Str("recipient", recipient.Uid).Str("provider", provider).Logger()

	sender, ok := ns.senders[provider]
	if !ok || sender == nil {
		log.Error().Msg("no sender configured for push provider")
		countNotification(n.Kind, outcomeFailed)
		return outcomeFailed
	}

	n.Token = recipient.pushToken()
	id, err := sender.Send(ctx, n)
	if err != nil {
		log.Error().Err(err).Msg("failed to send notification")
		countNotification(n.Kind, outcomeFailed)
		return outcomeFailed
	}

	log.Info().Str("message_id", id).Msg("notification sent")
	countNotification(n.Kind, outcomeSent)
	return outcomeSent
}

type APNSSender struct {
	client *apns2.Client
	topic  string
}

func (s APNSSender) Send(ctx context.Context, n PushNotification) (string, error) {
	p := payload.NewPayload().AlertTitle(n.Title).AlertBody(n.Body).Sound("default")
	for k, v := range n.Data {
		p.Custom(k, v)
	}

	notification := &apns2.Notification{
		Topic:       s.topic,
		DeviceToken: n.Token,
		Payload:     p,
	}

	// Call invitations go out as VoIP pushes so CallKit can ring the device.
	if n.Kind == pushKindCall {
		p.ContentAvailable()
		notification.Topic = s.topic + ".voip"
		notification.PushType = apns2.PushTypeVOIP
		notification.Priority = apns2.PriorityHigh
	}

	res, err := s.client.PushWithContext(ctx, notification)
	if err != nil {
		return "", fmt.Errorf("apns push: %w", err)
	}

	if !res.Sent() {
		return "", fmt.Errorf("apns rejected notification: %v %v", res.StatusCode, res.Reason)
	}

	return res.ApnsID, nil
}
