package main

import (
	"context"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"prbal/internal/adapter/api"
	"prbal/internal/adapter/api/handler"
	apimiddleware "prbal/internal/adapter/api/middleware"
	"prbal/internal/adapter/api/router"
	"prbal/internal/adapter/repository"
	"prbal/internal/infrastructure/firebase"
	"prbal/internal/infrastructure/websocket"
	"prbal/internal/usecase"
	"prbal/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opts []option.ClientOption

	// Service account from environment variable (production) or file path
	// (local development). With neither set, application default credentials
	// are used.
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opts = append(opts, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	} else if serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); serviceAccountPath != "" {
		if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", serviceAccountPath)
		}
		log.Printf("Using Firebase service account from file: %s", serviceAccountPath)
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	messagingRepo := repository.NewFirestoreMessagingRepository(firestoreClient)

	firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient, cfg.FirebaseApiKey)

	threadUseCase := usecase.NewThreadUseCase(messagingRepo, userRepo)
	messageUseCase := usecase.NewMessageUseCase(messagingRepo, cfg.IdempotencyWindow)

	hub := websocket.NewHub()
	gateway := websocket.NewGateway(hub, threadUseCase, messageUseCase)

	// REST sends and websocket sends fan out through the same gateway, so
	// every connected participant (the sender included) receives the
	// persisted copy.
	messageUseCase.SetBroadcaster(gateway)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)

	// IP-level guards; user-level limits live in the usecases.
	apiLimiter := apimiddleware.NewIPRateLimiter(60, time.Minute)
	wsLimiter := apimiddleware.NewIPRateLimiter(30, time.Minute)

	threadHandler := handler.NewThreadHandler(threadUseCase, messageUseCase)
	messageHandler := handler.NewMessageHandler(messageUseCase)
	wsHandler := handler.NewWebSocketHandler(gateway, firebaseAuthClient, cfg)
	healthHandler := handler.NewHealthHandler()

	router.Setup(e, threadHandler, messageHandler, wsHandler, healthHandler, authMiddleware, apiLimiter, wsLimiter)

	if cfg.Environment == "development" {
		devTokenHandler := handler.NewDevTokenHandler(firebaseAuthClient, userRepo)
		router.SetupDevRouter(e, devTokenHandler)
	}

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := e.Start(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
