package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/token"
	"google.golang.org/api/option"
)

var Version = "development"

var BuildTime string = "notset"
var BuildCommit string = "n/a"

// firebaseAppHandle initialises the Firebase app once per process and hands
// the same app to every caller.
type firebaseAppHandle struct {
	cfg  Config
	once sync.Once
	app  *firebase.App
	err  error
}

func (h *firebaseAppHandle) get(ctx context.Context) (*firebase.App, error) {
	h.once.Do(func() {
		conf := &firebase.Config{
			ProjectID:   h.cfg.FirebaseProjectID,
			DatabaseURL: h.cfg.FirebaseDatabaseURL,
		}

		var opts []option.ClientOption
		if h.cfg.FirebaseCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(h.cfg.FirebaseCredentialsFile))
		}

		h.app, h.err = firebase.NewApp(ctx, conf, opts...)
		if h.err != nil {
			h.err = fmt.Errorf("initializing firebase app: %w", h.err)
		}
	})
	return h.app, h.err
}

func configureDynamoDbClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.DynamoDBRegion)}
	if cfg.DynamoDBEndpoint != "" {
		opts = append(opts, config.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.DynamoDBEndpoint}, nil
		})))
	}

	// Using the SDK's default configuration, loading additional config
	// and credentials values from the environment variables, shared
	// credentials, and shared configuration files
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg), nil
}

// configureRepository builds the document store selected by store.backend.
func configureRepository(ctx context.Context, cfg Config, firebaseApp *firebaseAppHandle, logger zerolog.Logger) (Repository, func(), error) {
	switch cfg.StoreBackend {
	case storeBackendRTDB:
		app, err := firebaseApp.get(ctx)
		if err != nil {
			return nil, nil, err
		}
		client, err := app.Database(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing database client: %w", err)
		}
		return FirebaseRepository{client: client}, func() {}, nil

	case storeBackendDynamoDB:
		client, err := configureDynamoDbClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		// Local endpoints start empty.
		if cfg.DynamoDBEndpoint != "" {
			if err := createUserTable(ctx, client, logger); err != nil {
				return nil, nil, err
			}
			if err := createCallTable(ctx, client, logger); err != nil {
				return nil, nil, err
			}
		}
		return DynamoDbRepository{client: client}, func() {}, nil

	default:
		app, err := firebaseApp.get(ctx)
		if err != nil {
			return nil, nil, err
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing firestore client: %w", err)
		}
		return FirestoreRepository{client: client}, func() { _ = client.Close() }, nil
	}
}

func configAPNSClient(cfg Config) (*apns2.Client, error) {
	authKey, err := token.AuthKeyFromFile(cfg.APNSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading apns auth key: %w", err)
	}

	t := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.APNSKeyID,
		TeamID:  cfg.APNSTeamID,
	}

	client := apns2.NewTokenClient(t)
	if cfg.APNSProduction {
		return client.Production(), nil
	}
	return client.Development(), nil
}

func newLogger(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.Info().Str("version", Version).Str("build_time", BuildTime).Str("build_commit", BuildCommit).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	firebaseApp := &firebaseAppHandle{cfg: cfg}
	app, err := firebaseApp.get(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize firebase")
	}

	repository, closeRepository, err := configureRepository(ctx, cfg, firebaseApp, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to configure store")
	}
	defer closeRepository()

	cloudMessagingClient, err := app.Messaging(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("error getting messaging client")
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("error getting auth client")
	}

	var apnsSender PushSender
	if cfg.APNSEnabled() {
		apnsClient, err := configAPNSClient(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure apns")
		}
		apnsSender = APNSSender{client: apnsClient, topic: cfg.APNSTopic}
	}

	var deduper EventDeduper
	if cfg.RedisURL != "" {
		redisClient, err := connectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		deduper = NewRedisEventDeduper(redisClient, cfg.DedupTTL, logger)
	}

	if _, err := cfg.RtcCredentials(); err != nil {
		logger.Warn().Err(err).Msg("rtc token issuance will fail until credentials are configured")
	}

	notificationService := NewNotificationService(FCMSender{client: cloudMessagingClient}, apnsSender, logger)
	handlers := NewHandlers(repository, notificationService, NewRtcTokenMinter(cfg), authClient, deduper, logger)

	var eventAuth gin.HandlerFunc
	if cfg.EventsAudience != "" {
		jwtAuth := NewJwtAuth(cfg.EventsJWKSURL, cfg.EventsAudience)
		if err := jwtAuth.CacheJWK(); err != nil {
			logger.Fatal().Err(err).Msg("failed to get JWKS")
		}
		eventAuth = EventDeliveryAuthMiddleware(jwtAuth, logger)
	}

	var consumerDone chan struct{}
	if cfg.KafkaEnabled() {
		consumerDone = make(chan struct{})
		go func() {
			defer close(consumerDone)
			handlers.consumeChangeEvents(ctx, newChangeEventReader(cfg), logger)
		}()
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddress(),
		Handler: newRouter(handlers, eventAuth),
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("listen")
			stop()
		}
	}()

	<-ctx.Done()

	shutDownCtx, cancelShutDownCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutDownCtx()
	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}

	if consumerDone != nil {
		<-consumerDone
	}
	logger.Info().Msg("server exiting")
}
