package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type HTTP struct {
	Addr string
	// AllowedOrigins for CORS. Empty slice means same-origin only.
	AllowedOrigins []string
}

type Storage struct {
	// Dir is the pebble database directory. Empty disables persistence
	// (in-memory only, used by tests).
	Dir string
}

type Kafka struct {
	// Brokers enables the trade broadcaster when non-empty.
	Brokers []string
	Topic   string
}

type Admin struct {
	// Bootstrap administrator, created at startup if absent.
	Name   string
	APIKey string
}

type Config struct {
	HTTP    HTTP
	Storage Storage
	Kafka   Kafka
	Admin   Admin
	LogFile string
}

func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Storage: Storage{Dir: "data/birzha"},
		Kafka:   Kafka{Topic: "trades"},
		Admin:   Admin{Name: "admin"},
		LogFile: "data/birzha.log",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.HTTP.AllowedOrigins = strings.Split(origins, ",")
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Storage.Dir = dir
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		cfg.Kafka.Topic = topic
	}
	if name := os.Getenv("ADMIN_NAME"); name != "" {
		cfg.Admin.Name = name
	}
	if key := os.Getenv("ADMIN_API_KEY"); key != "" {
		cfg.Admin.APIKey = key
	}

	return cfg
}
