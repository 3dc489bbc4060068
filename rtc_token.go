package main

import (
	"fmt"
	"time"

	rtctokenbuilder "github.com/AgoraIO/Tools/DynamicKey/AgoraDynamicKey/go/src/RtcTokenBuilder"
)

const defaultRtcTokenTTL = 3600 * time.Second

type RtcCredentials struct {
	AppID          string
	AppCertificate string
}

// rtcSignFunc signs an RTC token. uid 0 lets any client join with the token.
type rtcSignFunc func(appID, appCertificate, channelName string, uid uint32, role rtctokenbuilder.Role, privilegeExpiredTs uint32) (string, error)

// TokenMinter mints RTC access tokens for a channel.
type TokenMinter interface {
	Mint(channelName string) (string, error)
}

// RtcTokenMinter signs publisher tokens with the Agora token builder.
type RtcTokenMinter struct {
	credentials func() (RtcCredentials, error)
	ttl         time.Duration
	now         func() time.Time
	sign        rtcSignFunc
}

func NewRtcTokenMinter(cfg Config) *RtcTokenMinter {
	ttl := cfg.AgoraTokenTTL
	if ttl <= 0 {
		ttl = defaultRtcTokenTTL
	}
	return &RtcTokenMinter{
		credentials: cfg.RtcCredentials,
		ttl:         ttl,
		now:         time.Now,
		sign:        rtctokenbuilder.BuildTokenWithUID,
	}
}

// Mint returns ErrCredentialsMissing when the app id or certificate is
// unset. Any other error comes from the signer.
func (m *RtcTokenMinter) Mint(channelName string) (string, error) {
	creds, err := m.credentials()
	if err != nil {
		return "", err
	}

	expireAt := uint32(m.now().Add(m.ttl).Unix())
	token, err := m.sign(creds.AppID, creds.AppCertificate, channelName, 0, rtctokenbuilder.RolePublisher, expireAt)
	if err != nil {
		return "", fmt.Errorf("sign rtc token for channel %s: %w", channelName, err)
	}

	return token, nil
}
