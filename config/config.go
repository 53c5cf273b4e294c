package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	// All variables
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	SEED_DEMO    bool
	// HTTP
	ALLOWED_ORIGINS     string
	RATE_LIMIT_REQUESTS int // per minute and client IP
	// Redis Configuration
	REDIS_URL string
	// DigitalOcean Spaces (sheet scans)
	DO_SPACES_ACCESS_KEY   string
	DO_SPACES_SECRET_KEY   string
	DO_SPACES_BUCKET       string
	DO_SPACES_REGION       string
	DO_SPACES_ENDPOINT     string
	DO_SPACES_CDN_ENDPOINT string
	// Extraction service
	EXTRACTION_SERVICE_URL        string
	EXTRACTION_CALLBACK_URL       string
	EXTRACTION_TIMEOUT            time.Duration
	EXTRACTION_POLL_INTERVAL      time.Duration
	EXTRACTION_SUBMIT_CONCURRENCY int
	// Event bus: memory, redis or postgres
	EVENT_BUS string
	// Sheets
	ICM_CANDIDATES_PER_SHEET int
	// Cron
	CRON_ENABLED         bool
	STALE_JOB_AFTER      time.Duration
	STALE_SWEEP_SCHEDULE string
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	sslMode := os.Getenv("DB_SSL_MODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	extractionURL := os.Getenv("EXTRACTION_SERVICE_URL")
	if extractionURL == "" {
		extractionURL = "http://localhost:8081"
	}

	eventBus := os.Getenv("EVENT_BUS")
	if eventBus == "" {
		eventBus = "memory"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}

	sweepSchedule := os.Getenv("STALE_SWEEP_SCHEDULE")
	if sweepSchedule == "" {
		// every minute, on the 30th second
		sweepSchedule = "30 * * * * *"
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  sslMode,
		PORT:         port,
		SEED_DEMO:    envBool("SEED_DEMO", false),
		// HTTP
		ALLOWED_ORIGINS:     allowedOrigins,
		RATE_LIMIT_REQUESTS: envInt("RATE_LIMIT_REQUESTS", 300),
		// Redis
		REDIS_URL: os.Getenv("REDIS_URL"),
		// DigitalOcean
		DO_SPACES_ACCESS_KEY:   os.Getenv("DO_SPACES_ACCESS_KEY"),
		DO_SPACES_SECRET_KEY:   os.Getenv("DO_SPACES_SECRET_KEY"),
		DO_SPACES_BUCKET:       os.Getenv("DO_SPACES_BUCKET"),
		DO_SPACES_REGION:       os.Getenv("DO_SPACES_REGION"),
		DO_SPACES_ENDPOINT:     os.Getenv("DO_SPACES_ENDPOINT"),
		DO_SPACES_CDN_ENDPOINT: os.Getenv("DO_SPACES_CDN_ENDPOINT"),
		// Extraction
		EXTRACTION_SERVICE_URL:        extractionURL,
		EXTRACTION_CALLBACK_URL:       os.Getenv("EXTRACTION_CALLBACK_URL"),
		EXTRACTION_TIMEOUT:            envDuration("EXTRACTION_TIMEOUT", 2*time.Minute),
		EXTRACTION_POLL_INTERVAL:      envDuration("EXTRACTION_POLL_INTERVAL", 3*time.Second),
		EXTRACTION_SUBMIT_CONCURRENCY: envInt("EXTRACTION_SUBMIT_CONCURRENCY", 4),
		EVENT_BUS:                     eventBus,
		ICM_CANDIDATES_PER_SHEET:      envInt("ICM_CANDIDATES_PER_SHEET", 20),
		// Cron
		CRON_ENABLED:         envBool("CRON_ENABLED", true),
		STALE_JOB_AFTER:      envDuration("STALE_JOB_AFTER", 15*time.Minute),
		STALE_SWEEP_SCHEDULE: sweepSchedule,
	}

	return envVariables, nil
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
