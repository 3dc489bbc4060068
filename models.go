package main

const (
	pathUsers = "users"
	pathCalls = "calls"

	fallbackDisplayName = "Alguien"
)

const (
	pushProviderFCM  = "fcm"
	pushProviderAPNS = "apns"
)

type UserRecord struct {
	Uid           string `json:"uid" firestore:"-" dynamodbav:"userId"`
	DisplayName   string `json:"display_name" firestore:"display_name" dynamodbav:"display_name"`
	FcmToken      string `json:"fcm_token" firestore:"fcm_token" dynamodbav:"fcm_token"`
	CurrentChatId string `json:"current_chat_id" firestore:"current_chat_id" dynamodbav:"current_chat_id"`
	PushProvider  string `json:"push_provider,omitempty" firestore:"push_provider,omitempty" dynamodbav:"push_provider,omitempty"`
	ApnsToken     string `json:"apns_token,omitempty" firestore:"apns_token,omitempty" dynamodbav:"apns_token,omitempty"`
}

// displayNameOrDefault returns the name shown as a notification title.
func (u UserRecord) displayNameOrDefault() string {
	if u.DisplayName == "" {
		return fallbackDisplayName
	}
	return u.DisplayName
}

// pushToken returns the delivery token for the user's provider, or "" when
// the user has not registered one.
func (u UserRecord) pushToken() string {
	if u.PushProvider == pushProviderAPNS {
		return u.ApnsToken
	}
	return u.FcmToken
}

// isViewingChat reports whether the user currently has chatId open.
func (u UserRecord) isViewingChat(chatId string) bool {
	return u.CurrentChatId != "" && u.CurrentChatId == chatId
}

type MessageRecord struct {
	SenderUid    string      `json:"sender_uid" firestore:"sender_uid"`
	RecipientUid string      `json:"recipient_uid" firestore:"recipient_uid"`
	Text         string      `json:"text,omitempty" firestore:"text,omitempty"`
	ImageUrl     string      `json:"image_url,omitempty" firestore:"image_url,omitempty"`
	VideoUrl     string      `json:"video_url,omitempty" firestore:"video_url,omitempty"`
	AudioUrl     string      `json:"audio_url,omitempty" firestore:"audio_url,omitempty"`
	Reactions    ReactionMap `json:"reactions,omitempty" firestore:"reactions,omitempty"`
}

// notificationBody picks the push body for a new message.
func (m MessageRecord) notificationBody() string {
	switch {
	case m.Text != "":
		return m.Text
	case m.ImageUrl != "":
		return "📷 Foto"
	case m.VideoUrl != "":
		return "▶️ Video"
	case m.AudioUrl != "":
		return "🎤 Mensaje de voz"
	default:
		return "Te ha enviado un mensaje."
	}
}

type CallRecord struct {
	Id          string `json:"id" firestore:"-" dynamodbav:"callId"`
	CallerId    string `json:"caller_id" firestore:"caller_id" dynamodbav:"caller_id"`
	ReceiverId  string `json:"receiver_id" firestore:"receiver_id" dynamodbav:"receiver_id"`
	IsVideo     bool   `json:"is_video" firestore:"is_video" dynamodbav:"is_video"`
	ChannelName string `json:"channel_name" firestore:"channel_name" dynamodbav:"channel_name"`
	Token       string `json:"token,omitempty" firestore:"token,omitempty" dynamodbav:"token,omitempty"`
}

func (c CallRecord) callType() string {
	if c.IsVideo {
		return "video"
	}
	return "audio"
}
