package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kjk/betterguid"
)

const (
	triggerMessageCreated = "messages.created"
	triggerMessageUpdated = "messages.updated"
	triggerCallCreated    = "calls.created"
)

var ErrMalformedEvent = errors.New("malformed document event")

// FirestoreEvent is the document change envelope delivered for a trigger.
type FirestoreEvent struct {
	OldValue   FirestoreValue `json:"oldValue"`
	Value      FirestoreValue `json:"value"`
	UpdateMask UpdateMask     `json:"updateMask"`
}

type UpdateMask struct {
	FieldPaths []string `json:"fieldPaths"`
}

type FirestoreValue struct {
	CreateTime time.Time       `json:"createTime"`
	Fields     FirestoreFields `json:"fields"`
	Name       string          `json:"name"`
	UpdateTime time.Time       `json:"updateTime"`
}

// FirestoreFields holds document fields in their typed wire encoding.
type FirestoreFields map[string]FirestoreField

type FirestoreField struct {
	StringValue  *string     `json:"stringValue,omitempty"`
	BooleanValue *bool       `json:"booleanValue,omitempty"`
	ArrayValue   *ArrayValue `json:"arrayValue,omitempty"`
	MapValue     *MapValue   `json:"mapValue,omitempty"`
}

type ArrayValue struct {
	Values []FirestoreField `json:"values"`
}

type MapValue struct {
	Fields FirestoreFields `json:"fields"`
}

func (f FirestoreFields) str(name string) string {
	field, ok := f[name]
	if !ok || field.StringValue == nil {
		return ""
	}
	return *field.StringValue
}

func (f FirestoreFields) boolean(name string) bool {
	field, ok := f[name]
	if !ok {
		return false
	}
	if field.BooleanValue != nil {
		return *field.BooleanValue
	}
	// Older clients stored the call type as a string.
	if field.StringValue != nil {
		v, _ := strconv.ParseBool(*field.StringValue)
		return v
	}
	return false
}

func (f FirestoreFields) reactions(name string) ReactionMap {
	field, ok := f[name]
	if !ok || field.MapValue == nil {
		return nil
	}

	reactions := make(ReactionMap, len(field.MapValue.Fields))
	for emoji, users := range field.MapValue.Fields {
		if users.ArrayValue == nil {
			reactions[emoji] = nil
			continue
		}
		uids := make([]string, 0, len(users.ArrayValue.Values))
		for _, u := range users.ArrayValue.Values {
			if u.StringValue != nil {
				uids = append(uids, *u.StringValue)
			}
		}
		reactions[emoji] = uids
	}
	return reactions
}

func (v FirestoreValue) message() MessageRecord {
	return MessageRecord{
		SenderUid:    v.Fields.str("sender_uid"),
		RecipientUid: v.Fields.str("recipient_uid"),
		Text:         v.Fields.str("text"),
		ImageUrl:     v.Fields.str("image_url"),
		VideoUrl:     v.Fields.str("video_url"),
		AudioUrl:     v.Fields.str("audio_url"),
		Reactions:    v.Fields.reactions("reactions"),
	}
}

func (v FirestoreValue) call(callId string) CallRecord {
	if len(v.Fields) == 0 {
		return CallRecord{}
	}
	return CallRecord{
		Id:          callId,
		CallerId:    v.Fields.str("caller_id"),
		ReceiverId:  v.Fields.str("receiver_id"),
		IsVideo:     v.Fields.boolean("is_video"),
		ChannelName: v.Fields.str("channel_name"),
		Token:       v.Fields.str("token"),
	}
}

// documentPath strips the "projects/*/databases/*/documents/" prefix from a
// resource name.
func documentPath(name string) string {
	if i := strings.Index(name, "/documents/"); i >= 0 {
		return name[i+len("/documents/"):]
	}
	return strings.TrimPrefix(name, "/")
}

// matchPath extracts wildcard segments from path using a pattern such as
// "chats/{chatId}/messages/{messageId}".
func matchPath(pattern string, path string) (map[string]string, bool) {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")
	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	params := make(map[string]string)
	for i, p := range patternParts {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			if pathParts[i] == "" {
				return nil, false
			}
			params[p[1:len(p)-1]] = pathParts[i]
			continue
		}
		if p != pathParts[i] {
			return nil, false
		}
	}
	return params, true
}

const (
	messageDocumentPattern = "chats/{chatId}/messages/{messageId}"
	callDocumentPattern    = "calls/{callId}"
)

// eventId identifies a delivery for de-duplication. Deliveries without an
// id fall back to the document name and update time, then to a fresh id.
func eventId(deliveryId string, ev FirestoreEvent) string {
	if deliveryId != "" {
		return deliveryId
	}
	if ev.Value.Name != "" && !ev.Value.UpdateTime.IsZero() {
		return ev.Value.Name + "@" + ev.Value.UpdateTime.UTC().Format(time.RFC3339Nano)
	}
	return betterguid.New()
}

// dispatchEvent routes a decoded change event to its handler. Only
// malformed events return an error; handler outcomes are logged.
func (h *Handlers) dispatchEvent(ctx context.Context, trigger string, deliveryId string, ev FirestoreEvent) error {
	id := eventId(deliveryId, ev)
	log := h.logger.With().Str("trigger", trigger).Str("event_id", id).Logger()

	name := ev.Value.Name
	if name == "" {
		name = ev.OldValue.Name
	}
	path := documentPath(name)

	var run func() outcome
	switch trigger {
	case triggerMessageCreated, triggerMessageUpdated:
		params, ok := matchPath(messageDocumentPattern, path)
		if !ok {
			countEvent(trigger, "malformed")
			return fmt.Errorf("%w: %q is not a message document", ErrMalformedEvent, name)
		}
		chatId := params["chatId"]
		if trigger == triggerMessageCreated {
			run = func() outcome { return h.onMessageCreated(ctx, chatId, ev.Value.message()) }
		} else {
			run = func() outcome {
				return h.onMessageUpdated(ctx, chatId, ev.OldValue.message(), ev.Value.message())
			}
		}
	case triggerCallCreated:
		params, ok := matchPath(callDocumentPattern, path)
		if !ok {
			countEvent(trigger, "malformed")
			return fmt.Errorf("%w: %q is not a call document", ErrMalformedEvent, name)
		}
		callId := params["callId"]
		run = func() outcome { return h.onCallCreated(ctx, callId, ev.Value.call(callId)) }
	default:
		countEvent(trigger, "malformed")
		return fmt.Errorf("%w: unknown trigger %q", ErrMalformedEvent, trigger)
	}

	if h.deduper != nil && !h.deduper.firstDelivery(ctx, id) {
		log.Info().Msg("duplicate delivery skipped")
		countEvent(trigger, "duplicate")
		return nil
	}

	result := run()
	log.Info().Str("outcome", string(result)).Msg("event processed")
	countEvent(trigger, "processed")
	return nil
}
