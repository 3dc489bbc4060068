package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	storeBackendFirestore = "firestore"
	storeBackendRTDB      = "rtdb"
	storeBackendDynamoDB  = "dynamodb"
)

// ErrCredentialsMissing is returned when the RTC signing credentials have
// not been configured.
var ErrCredentialsMissing = errors.New("rtc signing credentials are not configured")

// Config holds runtime configuration for the relay.
type Config struct {
	HTTPPort string
	LogLevel string

	FirebaseProjectID       string
	FirebaseDatabaseURL     string
	FirebaseCredentialsFile string

	StoreBackend     string
	DynamoDBRegion   string
	DynamoDBEndpoint string

	AgoraAppID          string
	AgoraAppCertificate string
	AgoraTokenTTL       time.Duration

	APNSKeyFile    string
	APNSKeyID      string
	APNSTeamID     string
	APNSTopic      string
	APNSProduction bool

	EventsAudience string
	EventsJWKSURL  string

	RedisURL string
	DedupTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.HTTPPort, ":") {
		return c.HTTPPort
	}
	return fmt.Sprintf(":%s", c.HTTPPort)
}

// APNSEnabled reports whether direct APNs delivery was configured.
func (c Config) APNSEnabled() bool {
	return c.APNSKeyFile != ""
}

// KafkaEnabled reports whether the change-event consumer should run.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// RtcCredentials returns the Agora credentials, or ErrCredentialsMissing.
func (c Config) RtcCredentials() (RtcCredentials, error) {
	if c.AgoraAppID == "" || c.AgoraAppCertificate == "" {
		return RtcCredentials{}, ErrCredentialsMissing
	}
	return RtcCredentials{AppID: c.AgoraAppID, AppCertificate: c.AgoraAppCertificate}, nil
}

// LoadConfig reads configuration from the environment and an optional .env file.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SIMPLECHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return loadConfigFrom(v)
}

func loadConfigFrom(v *viper.Viper) (Config, error) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.backend", storeBackendFirestore)
	v.SetDefault("dynamodb.region", "us-east-1")
	v.SetDefault("agora.token_ttl", "3600s")
	v.SetDefault("apns.production", true)
	v.SetDefault("events.jwks_url", "https://www.googleapis.com/oauth2/v3/certs")
	v.SetDefault("dedup.ttl", "10m")
	v.SetDefault("kafka.group_id", "simplechat-relay")

	tokenTTL, err := time.ParseDuration(v.GetString("agora.token_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid agora token ttl: %w", err)
	}

	dedupTTL, err := time.ParseDuration(v.GetString("dedup.ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid dedup ttl: %w", err)
	}

	cfg := Config{
		HTTPPort:                v.GetString("http.port"),
		LogLevel:                v.GetString("log.level"),
		FirebaseProjectID:       v.GetString("firebase.project_id"),
		FirebaseDatabaseURL:     v.GetString("firebase.database_url"),
		FirebaseCredentialsFile: v.GetString("firebase.credentials_file"),
		StoreBackend:            strings.ToLower(v.GetString("store.backend")),
		DynamoDBRegion:          v.GetString("dynamodb.region"),
		DynamoDBEndpoint:        v.GetString("dynamodb.endpoint"),
		AgoraAppID:              v.GetString("agora.app_id"),
		AgoraAppCertificate:     v.GetString("agora.app_certificate"),
		AgoraTokenTTL:           tokenTTL,
		APNSKeyFile:             v.GetString("apns.key_file"),
		APNSKeyID:               v.GetString("apns.key_id"),
		APNSTeamID:              v.GetString("apns.team_id"),
		APNSTopic:               v.GetString("apns.topic"),
		APNSProduction:          v.GetBool("apns.production"),
		EventsAudience:          v.GetString("events.audience"),
		EventsJWKSURL:           v.GetString("events.jwks_url"),
		RedisURL:                v.GetString("redis.url"),
		DedupTTL:                dedupTTL,
		KafkaBrokers:            splitList(v.GetString("kafka.brokers")),
		KafkaTopic:              v.GetString("kafka.topic"),
		KafkaGroupID:            v.GetString("kafka.group_id"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case storeBackendFirestore, storeBackendRTDB, storeBackendDynamoDB:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	if c.FirebaseProjectID == "" {
		return errors.New("firebase project id must be provided")
	}

	if c.StoreBackend == storeBackendRTDB && c.FirebaseDatabaseURL == "" {
		return errors.New("firebase database url is required for the rtdb backend")
	}

	if c.APNSEnabled() && (c.APNSKeyID == "" || c.APNSTeamID == "" || c.APNSTopic == "") {
		return errors.New("apns key id, team id and topic must be provided with the apns key file")
	}

	if c.AgoraTokenTTL <= 0 {
		return errors.New("agora token ttl must be positive")
	}

	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
