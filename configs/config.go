package configs

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort     int
	StoreDriver string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBNameTest string
	DBTimeout  time.Duration

	RedisHost     string
	RedisPort     int
	RedisPassword string

	JWTSecret string
	JWTTTL    time.Duration

	OtpTTL           time.Duration
	OtpMaxResends    int
	OtpMaxAttempts   int
	OtpEncryptionKey string

	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	FromEmail string

	AdminUsername string
	AdminEmail    string
	AdminPassword string

	LogDir string
}

func LoadConfig() Config {
	// Load .env when present
	if err := godotenv.Load(); err != nil {
		// Stay quiet under tests
		if os.Getenv("GO_ENV") != "test" {
			log.Println("No .env file found, using default values")
		}
	}

	return Config{
		AppPort:     getInt("APP_PORT", 3004),
		StoreDriver: getString("STORE_DRIVER", "postgres"),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getInt("DB_PORT", 10501),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBNameTest: os.Getenv("DB_NAME_TEST"),
		DBTimeout:  getDuration("DB_TIMEOUT", 5*time.Second),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getInt("REDIS_PORT", 6379),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		JWTSecret: getString("JWT_SECRET", "secret"),
		JWTTTL:    getDuration("JWT_TTL", time.Hour),

		OtpTTL:           getDuration("OTP_TTL", 10*time.Minute),
		OtpMaxResends:    getInt("OTP_MAX_RESENDS", 3),
		OtpMaxAttempts:   getInt("OTP_MAX_ATTEMPTS", 5),
		OtpEncryptionKey: getString("OTP_ENCRYPTION_KEY", "MySecretEncryptionKey!"),

		SMTPHost:  os.Getenv("SMTP_HOST"),
		SMTPPort:  getInt("SMTP_PORT", 2525),
		SMTPUser:  os.Getenv("SMTP_USER"),
		SMTPPass:  os.Getenv("SMTP_PASS"),
		FromEmail: getString("SMTP_FROM", "noreply@orgdirectory.local"),

		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		LogDir: getString("LOG_DIR", "logs"),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

// getDuration accepts Go duration strings ("90s", "10m").
func getDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
