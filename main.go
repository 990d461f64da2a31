package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsgo_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"vendotrash/internal/api"
	"vendotrash/internal/api/handler"
	"vendotrash/internal/api/middleware"
	"vendotrash/internal/classifier"
	"vendotrash/internal/config"
	"vendotrash/internal/iot"
	"vendotrash/internal/repository/postgresql"
	"vendotrash/internal/service"
	"vendotrash/internal/session"
)

func main() {
	// 1. Load configuration
	cfg := config.Load()
	log.Println("Configuration loaded.")

	// 2. Database
	db, err := postgresql.NewDB(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database.")

	// 3. AWS SDK config
	awsSDKCfg, err := awsgo_config.LoadDefaultConfig(context.TODO(), awsgo_config.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("Could not load AWS SDK config: %v", err)
	}
	log.Println("AWS SDK config loaded for region:", cfg.AWSRegion)

	// 4. AWS clients
	sqsClient := sqs.NewFromConfig(awsSDKCfg)
	rekognitionClient := rekognition.NewFromConfig(awsSDKCfg)
	var iotDataPlaneClient *iotdataplane.Client
	if cfg.IoTMQTTEndpoint != "" {
		endpoint := cfg.IoTMQTTEndpoint
		if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
			endpoint = "https://" + endpoint
		}
		iotDataPlaneClient = iotdataplane.NewFromConfig(awsSDKCfg, func(o *iotdataplane.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
		log.Println("IoT Data Plane client ready:", endpoint)
	} else {
		log.Println("WARNING: IOT_MQTT_ENDPOINT not set, sorter commands are disabled.")
	}

	// 5. Session store: Redis when reachable, process memory otherwise
	var store session.Store
	redisStore := session.NewRedisStore(session.RedisOptions{
		Address:  cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisStore.Ping(pingCtx); err != nil {
		log.Printf("WARNING: Redis at %s unreachable (%v), keeping sessions in memory.", cfg.RedisAddr, err)
		_ = redisStore.Close()
		store = session.NewMemoryStore()
	} else {
		log.Println("Connected to Redis at", cfg.RedisAddr)
		defer redisStore.Close()
		store = redisStore
	}
	cancelPing()
	gate := session.NewGate(store, cfg.SessionTTL)
	history := session.NewHistory(store, cfg.HistoryLimit)

	// 6. Repositories
	userRepo := postgresql.NewPgUserRepository(db)
	machineRepo := postgresql.NewPgMachineRepository(db)
	machineEventsLogRepo := postgresql.NewPgMachineEventsLogRepository(db)
	transactionRepo := postgresql.NewPgTransactionRepository(db)
	rewardRepo := postgresql.NewPgRewardRepository(db)
	redemptionRepo := postgresql.NewPgRedemptionRepository(db)

	// websocket manager
	webSocketManager := handler.NewWebSocketManager()
	go webSocketManager.Start()
	log.Println("WebSocket manager started.")

	// 7. Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpirationHours)
	userService := service.NewUserService(userRepo)
	ledgerService := service.NewLedgerService(transactionRepo)
	rewardService := service.NewRewardService(rewardRepo, redemptionRepo, userRepo)
	machineService := service.NewMachineService(machineRepo, machineEventsLogRepo, iotDataPlaneClient, cfg.SorterTopicPrefix)
	visionService := service.NewVisionService(rekognitionClient, cfg.VisionMaxLabels, cfg.VisionMinConfidence, cfg.VisionTimeout)
	labelClassifier := classifier.New(classifier.Options{
		TransparentBottleDiscount: cfg.TransparentBottleDiscount,
		GlassTransparencyDiscount: cfg.GlassTransparencyDiscount,
		MetallicCanDiscount:       cfg.MetallicCanDiscount,
	})
	vendoService := service.NewVendoService(gate, history, visionService, labelClassifier, ledgerService,
		webSocketManager, machineService, cfg.DefaultMachineID)

	// 8. Auth middleware
	if cfg.MachineAPIKey == "" {
		log.Println("WARNING: MACHINE_API_KEY not set, bridge endpoints are open.")
	}
	authMiddleware := middleware.NewAuthMiddleware(authService, cfg.MachineAPIKey)

	// 9. SQS consumer for machine telemetry
	var wg sync.WaitGroup
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())

	if cfg.SQSEventQueueURL == "" {
		log.Println("WARNING: SQS_EVENT_QUEUE_URL not set. SQS consumer will not run.")
	} else {
		sqsConsumer := iot.NewSQSConsumer(sqsClient, cfg, machineService)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Println("SQS consumer listening on queue:", cfg.SQSEventQueueURL)
			sqsConsumer.Start(consumerCtx)
			log.Println("SQS consumer stopped.")
		}()
	}

	go startMachineOfflineJob(consumerCtx, machineService, cfg.MachineOfflineAfter)

	// 10. HTTP router
	router := api.SetupRouter(api.Services{
		Auth:    authService,
		Users:   userService,
		Vendo:   vendoService,
		Ledger:  ledgerService,
		Rewards: rewardService,
		Machine: machineService,
	}, authMiddleware, webSocketManager)

	// 11. HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server listening on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancelConsumer()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shut down: %v", err)
	}

	if cfg.SQSEventQueueURL != "" {
		log.Println("Waiting for SQS consumer to stop (up to 5 seconds)...")
		c := make(chan struct{})
		go func() {
			defer close(c)
			wg.Wait()
		}()
		select {
		case <-c:
			log.Println("SQS consumer stopped cleanly.")
		case <-time.After(5 * time.Second):
			log.Println("SQS consumer did not stop in time.")
		}
	}

	log.Println("Server stopped.")
}

func startMachineOfflineJob(ctx context.Context, machineService *service.MachineService, silence time.Duration) {
	if silence <= 0 {
		return
	}
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		count, err := machineService.MarkSilentOffline(jobCtx, silence)
		if err != nil {
			log.Printf("Error marking silent machines offline: %v", err)
		} else if count > 0 {
			log.Printf("Marked %d silent machines offline", count)
		}
		cancel()
	}
}
