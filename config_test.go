package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	v := viper.New()
	v.Set("firebase.project_id", "simplechat")

	cfg, err := loadConfigFrom(v)
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, storeBackendFirestore, cfg.StoreBackend)
	require.Equal(t, time.Hour, cfg.AgoraTokenTTL)
	require.Equal(t, 10*time.Minute, cfg.DedupTTL)
	require.True(t, cfg.APNSProduction)
	require.False(t, cfg.APNSEnabled())
	require.False(t, cfg.KafkaEnabled())
	require.Equal(t, "simplechat-relay", cfg.KafkaGroupID)
}

func TestLoadConfigOverrides(t *testing.T) {
	v := viper.New()
	v.Set("firebase.project_id", "simplechat")
	v.Set("http.port", ":9090")
	v.Set("store.backend", "DynamoDB")
	v.Set("agora.token_ttl", "90s")
	v.Set("kafka.brokers", "kafka-1:9092, kafka-2:9092,")
	v.Set("kafka.topic", "document-changes")

	cfg, err := loadConfigFrom(v)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, storeBackendDynamoDB, cfg.StoreBackend)
	require.Equal(t, 90*time.Second, cfg.AgoraTokenTTL)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.KafkaEnabled())
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{"missing project", map[string]string{}},
		{"unknown backend", map[string]string{"firebase.project_id": "p", "store.backend": "mongo"}},
		{"rtdb without url", map[string]string{"firebase.project_id": "p", "store.backend": "rtdb"}},
		{"partial apns", map[string]string{"firebase.project_id": "p", "apns.key_file": "key.p8"}},
		{"bad ttl", map[string]string{"firebase.project_id": "p", "agora.token_ttl": "soon"}},
		{"zero ttl", map[string]string{"firebase.project_id": "p", "agora.token_ttl": "0s"}},
		{"bad dedup ttl", map[string]string{"firebase.project_id": "p", "dedup.ttl": "-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.values {
				v.Set(k, val)
			}

			_, err := loadConfigFrom(v)
			require.Error(t, err)
		})
	}
}

func TestRtcCredentials(t *testing.T) {
	_, err := Config{AgoraAppID: "app"}.RtcCredentials()
	require.ErrorIs(t, err, ErrCredentialsMissing)

	_, err = Config{AgoraAppCertificate: "cert"}.RtcCredentials()
	require.ErrorIs(t, err, ErrCredentialsMissing)

	creds, err := Config{AgoraAppID: "app", AgoraAppCertificate: "cert"}.RtcCredentials()
	require.NoError(t, err)
	require.Equal(t, RtcCredentials{AppID: "app", AppCertificate: "cert"}, creds)
}
