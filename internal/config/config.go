package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBDriver   string // pgx or postgres

	AWSRegion         string
	SQSEventQueueURL  string
	IoTMQTTEndpoint   string
	SorterTopicPrefix string

	JWTSecret          string
	JWTExpirationHours time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionTTL   time.Duration // how long a prepared insert stays open
	HistoryLimit int

	VisionMaxLabels     int32
	VisionMinConfidence float32 // Rekognition scale, 0-100
	VisionTimeout       time.Duration

	TransparentBottleDiscount float64
	GlassTransparencyDiscount float64
	MetallicCanDiscount       float64

	MachineAPIKey       string // shared secret for the bridge routes
	DefaultMachineID    int
	MachineOfflineAfter time.Duration
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Config: could not load .env file: %v", err)
	}

	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	jwtExpHours, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	sessionTTL, _ := strconv.Atoi(getEnv("SESSION_TTL_SECONDS", "600"))
	historyLimit, _ := strconv.Atoi(getEnv("HISTORY_LIMIT", "5"))
	maxLabels, _ := strconv.Atoi(getEnv("VISION_MAX_LABELS", "10"))
	visionTimeout, _ := strconv.Atoi(getEnv("VISION_TIMEOUT_SECONDS", "5"))
	defaultMachineID, _ := strconv.Atoi(getEnv("DEFAULT_MACHINE_ID", "1"))
	offlineAfter, _ := strconv.Atoi(getEnv("MACHINE_OFFLINE_AFTER_MINUTES", "5"))

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8000"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "vendotrash"),
		DBPassword: getEnv("DB_PASSWORD", "vendotrash"),
		DBName:     getEnv("DB_NAME", "vendotrash"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),
		DBDriver:   getEnv("DB_DRIVER", "pgx"),

		AWSRegion:         getEnv("AWS_REGION", "ap-southeast-1"),
		SQSEventQueueURL:  getEnv("SQS_EVENT_QUEUE_URL", ""),
		IoTMQTTEndpoint:   getEnv("IOT_MQTT_ENDPOINT", ""),
		SorterTopicPrefix: getEnv("SORTER_TOPIC_PREFIX", "vendotrash/command"),

		JWTSecret:          getEnv("JWT_SECRET", "change-me-vendotrash-jwt-secret"),
		JWTExpirationHours: time.Duration(jwtExpHours) * time.Hour,

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		SessionTTL:   time.Duration(sessionTTL) * time.Second,
		HistoryLimit: historyLimit,

		VisionMaxLabels:     int32(maxLabels),
		VisionMinConfidence: float32(getEnvFloat("VISION_MIN_CONFIDENCE", 50)),
		VisionTimeout:       time.Duration(visionTimeout) * time.Second,

		TransparentBottleDiscount: getEnvFloat("CLASSIFIER_TRANSPARENT_BOTTLE_DISCOUNT", 0.70),
		GlassTransparencyDiscount: getEnvFloat("CLASSIFIER_GLASS_TRANSPARENCY_DISCOUNT", 0.65),
		MetallicCanDiscount:       getEnvFloat("CLASSIFIER_METALLIC_CAN_DISCOUNT", 0.70),

		MachineAPIKey:       getEnv("MACHINE_API_KEY", ""),
		DefaultMachineID:    defaultMachineID,
		MachineOfflineAfter: time.Duration(offlineAfter) * time.Minute,
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Config: environment variable '%s' not set, using default: '%s'", key, fallback)
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := getEnv(key, strconv.FormatFloat(fallback, 'f', -1, 64))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Config: invalid float for '%s' (%q), using default %v", key, raw, fallback)
		return fallback
	}
	return v
}

// BridgeConfig configures the serial bridge process next to the machine.
type BridgeConfig struct {
	SerialPort   string // empty means auto-detect
	BaudRate     int
	ServerURL    string
	CameraURL    string
	MachineID    int
	MachineKey   string
	TokenTTL     time.Duration
	OpenAttempts int
}

func LoadBridge() *BridgeConfig {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Config: could not load .env file: %v", err)
	}

	baud, _ := strconv.Atoi(getEnv("BRIDGE_BAUD_RATE", "9600"))
	machineID, _ := strconv.Atoi(getEnv("BRIDGE_MACHINE_ID", "1"))
	tokenTTL, _ := strconv.Atoi(getEnv("BRIDGE_TOKEN_CACHE_SECONDS", "300"))
	attempts, _ := strconv.Atoi(getEnv("BRIDGE_OPEN_ATTEMPTS", "3"))

	return &BridgeConfig{
		SerialPort:   getEnv("BRIDGE_SERIAL_PORT", ""),
		BaudRate:     baud,
		ServerURL:    getEnv("BRIDGE_SERVER_URL", "http://localhost:8000"),
		CameraURL:    getEnv("BRIDGE_CAMERA_URL", "http://localhost:8080/snapshot.jpg"),
		MachineID:    machineID,
		MachineKey:   getEnv("MACHINE_API_KEY", ""),
		TokenTTL:     time.Duration(tokenTTL) * time.Second,
		OpenAttempts: attempts,
	}
}
