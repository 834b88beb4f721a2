package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/medremind-api/internal/application/reminder"
	"github.com/medremind-api/internal/config"
	"github.com/medremind-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/medremind-api/internal/infrastructure/jwt"
	s3infra "github.com/medremind-api/internal/infrastructure/s3"
	"github.com/medremind-api/internal/infrastructure/smtp"
	"github.com/medremind-api/internal/infrastructure/sns"
	"github.com/medremind-api/internal/scheduler"
	transporthttp "github.com/medremind-api/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// JWT provider (optional — graceful fallback if keys are missing).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		logger.Warn("JWT provider not available", "err", err)
	}

	// S3 store for prescription images.
	s3Client := s3infra.NewClient(cfg)
	s3Store := s3infra.NewStore(s3Client, cfg.S3BucketName)

	// SMTP mailer for refill alerts.
	mailer := smtp.NewMailer(cfg)

	// SNS push sender (optional — graceful fallback).
	var pushSender sns.PushSender
	if sender, err := sns.NewSender(cfg); err == nil {
		pushSender = sender
	} else {
		logger.Warn("SNS push sender not available, reminders disabled", "err", err)
	}

	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	sessionRepo := dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions)
	deviceRepo := dynamo.NewDeviceRepo(dynamoClient, cfg.DynamoTables.Devices)
	medicineRepo := dynamo.NewMedicineRepo(dynamoClient, cfg.DynamoTables.Medicines)
	doseDayRepo := dynamo.NewDoseDayRepo(dynamoClient, cfg.DynamoTables.DoseDays)
	notificationRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications)
	fileRepo := dynamo.NewFileRepo(dynamoClient, cfg.DynamoTables.Files)

	// Reminder scheduler: only runs when push delivery is configured.
	schedCtx, stopSched := context.WithCancel(context.Background())
	schedDone := make(chan struct{})
	if pushSender != nil {
		dispatcher := reminder.NewDispatcher(pushSender, notificationRepo, logger)
		sched := scheduler.New(scheduler.Deps{
			MedicineRepo: medicineRepo,
			UserRepo:     userRepo,
			DeviceRepo:   deviceRepo,
			DoseDayRepo:  doseDayRepo,
			Dispatcher:   dispatcher,
		}, time.Duration(cfg.PollIntervalMinutes)*time.Minute, logger)
		go func() {
			defer close(schedDone)
			sched.Run(schedCtx)
		}()
	} else {
		close(schedDone)
	}

	deps := &transporthttp.Deps{
		UserRepo:         userRepo,
		SessionRepo:      sessionRepo,
		DeviceRepo:       deviceRepo,
		MedicineRepo:     medicineRepo,
		DoseDayRepo:      doseDayRepo,
		NotificationRepo: notificationRepo,
		FileRepo:         fileRepo,
		S3Store:          s3Store,
		Mailer:           mailer,
		JWTProvider:      jwtProvider,
		Logger:           logger,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopSched()
	<-schedDone // wait for any in-flight tick

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	logger.Info("server stopped")
}
