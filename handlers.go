package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"
)

// Handlers reacts to chat and call document changes. It holds no state
// between invocations beyond its injected collaborators.
type Handlers struct {
	db            DatabaseService
	notifications *NotificationService
	minter        TokenMinter
	tokenVerifier IDTokenVerifier
	deduper       EventDeduper
	logger        zerolog.Logger
}

func NewHandlers(repository Repository, notifications *NotificationService, minter TokenMinter, verifier IDTokenVerifier, deduper EventDeduper, logger zerolog.Logger) *Handlers {
	return &Handlers{
		db:            DatabaseService{repository: repository},
		notifications: notifications,
		minter:        minter,
		tokenVerifier: verifier,
		deduper:       deduper,
		logger:        logger.With().Str("component", "handlers").Logger(),
	}
}

// loadRecipient returns the recipient when a push to them for chatId is
// allowed, or false with the reason logged.
func (h *Handlers) loadRecipient(ctx context.Context, log zerolog.Logger, recipientId string, chatId string) (UserRecord, bool) {
	recipient, err := h.db.getUserById(ctx, recipientId)
	if errors.Is(err, ErrNotFound) {
		log.Debug().Str("recipient", recipientId).Msg("recipient does not exist")
		return UserRecord{}, false
	}
	if err != nil {
		log.Error().Err(err).Str("recipient", recipientId).Msg("failed to load recipient")
		return UserRecord{}, false
	}

	if chatId != "" && recipient.isViewingChat(chatId) {
		log.Debug().Str("recipient", recipientId).Msg("recipient is viewing the chat")
		return UserRecord{}, false
	}

	if recipient.pushToken() == "" {
		log.Debug().Str("recipient", recipientId).Msg("recipient has no push token")
		return UserRecord{}, false
	}

	return recipient, true
}

// loadUser fetches a user that must exist for the push to make sense.
func (h *Handlers) loadUser(ctx context.Context, log zerolog.Logger, userId string) (UserRecord, bool) {
	user, err := h.db.getUserById(ctx, userId)
	if errors.Is(err, ErrNotFound) {
		log.Debug().Str("user", userId).Msg("user does not exist")
		return UserRecord{}, false
	}
	if err != nil {
		log.Error().Err(err).Str("user", userId).Msg("failed to load user")
		return UserRecord{}, false
	}
	return user, true
}

func (h *Handlers) onMessageCreated(ctx context.Context, chatId string, message MessageRecord) outcome {
	log := h.logger.With().Str("trigger", triggerMessageCreated).Str("chat_id", chatId).Logger()

	if message.SenderUid == message.RecipientUid {
		return h.suppressed(pushKindMessage)
	}

	recipient, ok := h.loadRecipient(ctx, log, message.RecipientUid, chatId)
	if !ok {
		return h.suppressed(pushKindMessage)
	}

	sender, ok := h.loadUser(ctx, log, message.SenderUid)
	if !ok {
		return h.suppressed(pushKindMessage)
	}
	senderName := sender.displayNameOrDefault()

	return h.notifications.dispatch(ctx, recipient, PushNotification{
		Kind:  pushKindMessage,
		Title: senderName,
		Body:  message.notificationBody(),
		Data: map[string]string{
			"click_action": clickActionFlutter,
			"type":         pushKindMessage,
			"chatId":       chatId,
			"senderId":     message.SenderUid,
			"senderName":   senderName,
		},
	})
}

func (h *Handlers) onMessageUpdated(ctx context.Context, chatId string, before MessageRecord, after MessageRecord) outcome {
	log := h.logger.With().Str("trigger", triggerMessageUpdated).Str("chat_id", chatId).Logger()

	reactorId, emoji, ok := findNewReaction(before.Reactions, after.Reactions)
	if !ok {
		log.Debug().Msg("no new reaction detected")
		return h.suppressed(pushKindReaction)
	}

	authorId := after.SenderUid
	if reactorId == authorId {
		return h.suppressed(pushKindReaction)
	}

	author, ok := h.loadRecipient(ctx, log, authorId, chatId)
	if !ok {
		return h.suppressed(pushKindReaction)
	}

	reactor, ok := h.loadUser(ctx, log, reactorId)
	if !ok {
		return h.suppressed(pushKindReaction)
	}
	reactorName := reactor.displayNameOrDefault()

	return h.notifications.dispatch(ctx, author, PushNotification{
		Kind:  pushKindReaction,
		Title: reactorName,
		Body:  "Reaccionó con " + emoji + " a tu mensaje.",
		Data: map[string]string{
			"click_action": clickActionFlutter,
			"type":         pushKindReaction,
			"chatId":       chatId,
			"senderId":     reactorId,
			"senderName":   reactorName,
			"emoji":        emoji,
		},
	})
}

// onCallCreated mints a token for the call's channel, stores it on the call
// and rings the callee. Every failure is logged and ends the invocation.
func (h *Handlers) onCallCreated(ctx context.Context, callId string, call CallRecord) outcome {
	log := h.logger.With().Str("trigger", triggerCallCreated).Str("call_id", callId).Logger()

	// Deliveries that only carry the document key are resolved from the store.
	if call == (CallRecord{}) {
		stored, err := h.db.getCallById(ctx, callId)
		if err != nil && !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Msg("failed to load call")
		}
		call = stored
	}

	if callId == "" || call.ChannelName == "" || call.ReceiverId == "" {
		log.Warn().Msg("call record is missing or incomplete")
		return h.suppressed(pushKindCall)
	}

	token, err := h.minter.Mint(call.ChannelName)
	if errors.Is(err, ErrCredentialsMissing) {
		log.Error().Msg("rtc credentials are not configured")
		countRtcToken("trigger", "unconfigured")
		return outcomeFailed
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to mint rtc token")
		countRtcToken("trigger", "error")
		return outcomeFailed
	}
	countRtcToken("trigger", "ok")

	if err := h.db.setCallToken(ctx, callId, token); err != nil {
		log.Error().Err(err).Msg("failed to store rtc token on call")
		return outcomeFailed
	}

	callee, ok := h.loadRecipient(ctx, log, call.ReceiverId, "")
	if !ok {
		return h.suppressed(pushKindCall)
	}

	callerName := fallbackDisplayName
	if caller, ok := h.loadUser(ctx, log, call.CallerId); ok {
		callerName = caller.displayNameOrDefault()
	}

	body := "Llamada de voz entrante"
	if call.IsVideo {
		body = "Videollamada entrante"
	}

	return h.notifications.dispatch(ctx, callee, PushNotification{
		Kind:  pushKindCall,
		Title: callerName,
		Body:  body,
		Data: map[string]string{
			"type":        pushKindCall,
			"callId":      callId,
			"callerId":    call.CallerId,
			"callerName":  callerName,
			"channelName": call.ChannelName,
			"callType":    call.callType(),
			"isVideo":     strconv.FormatBool(call.IsVideo),
		},
	})
}

func (h *Handlers) suppressed(kind string) outcome {
	countNotification(kind, outcomeSuppressed)
	return outcomeSuppressed
}
