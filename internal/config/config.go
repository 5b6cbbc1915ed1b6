package config

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Durations are plain ints: seconds unless the field says otherwise.
type Config struct {
	Environment  string             `env:"ENVIRONMENT" envDefault:"development"`
	Server       ServerConfig       `envPrefix:"SERVER_"`
	Database     DatabaseConfig     `envPrefix:"DATABASE_"`
	InitialAdmin InitialAdminConfig `envPrefix:"INITIAL_ADMIN_"`
	JWT          JWTConfig          `envPrefix:"JWT_"`
	Seed         SeedConfig         `envPrefix:"SEED_"`
	Email        EmailConfig        `envPrefix:"EMAIL_"`
	RabbitMQ     RabbitMQConfig     `envPrefix:"RABBITMQ_"`
	Redis        RedisConfig        `envPrefix:"REDIS_"`
	OTP          OTPConfig          `envPrefix:"OTP_"`
	NewUser      NewUserConfig      `envPrefix:"NEW_USER_"`
}

type ServerConfig struct {
	Port            string `env:"PORT" envDefault:"3000"`
	ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
	WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
	IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
	ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
}

type DatabaseConfig struct {
	Driver             string `env:"DRIVER" envDefault:"pgx"` // pgx or sqlite
	DSN                string `env:"DSN,required"`
	ConnectTimeout     int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
	QueryTimeout       int    `env:"QUERY_TIMEOUT" envDefault:"10"`
	TransactionTimeout int    `env:"TRANSACTION_TIMEOUT" envDefault:"20"`
	LockTimeout        int    `env:"LOCK_TIMEOUT" envDefault:"5000"` // milliseconds
	MaxOpenConns       int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns       int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
	MaxIdleTime        int    `env:"MAX_IDLE_TIME" envDefault:"60"`
}

// InitialAdminConfig describes the administrator registered on first start.
type InitialAdminConfig struct {
	Email    string `env:"EMAIL,required"`
	Password string `env:"PASSWORD,required"`
	FullName string `env:"FULL_NAME" envDefault:"Administrador"`
}

type JWTConfig struct {
	Secret     string `env:"SECRET,required"`
	Expiration int    `env:"EXPIRATION" envDefault:"1209600"` // 14 days
}

type SeedConfig struct {
	User struct {
		Password string `env:"PASSWORD" envDefault:"tutorias2024"`
	} `envPrefix:"USER_"`
}

type EmailConfig struct {
	// domain of the addresses generated by the seeder
	UserDomain string     `env:"USER_DOMAIN" envDefault:"tutorias.local"`
	SMTP       SMTPConfig `envPrefix:"SMTP_"`
}

type SMTPConfig struct {
	Host        string `env:"HOST"`
	Port        int    `env:"PORT" envDefault:"465"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
	DialTimeout int    `env:"DIAL_TIMEOUT" envDefault:"10"`
}

type RabbitMQConfig struct {
	DSN            string `env:"DSN,required"`
	PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
}

type RedisConfig struct {
	Host           string `env:"HOST" envDefault:"localhost"`
	Port           int    `env:"PORT" envDefault:"6379"`
	Password       string `env:"PASSWORD"`
	ConnectTimeout int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
	// per-command timeout
	OperationExpiration int `env:"OPERATION_EXPIRATION" envDefault:"10"`
}

type OTPConfig struct {
	Expiration int `env:"EXPIRATION" envDefault:"900"`
}

type NewUserConfig struct {
	PasswordLength int `env:"PASSWORD_LENGTH" envDefault:"12"`
}

// LoadConfig reads an optional .env file, without overriding variables that
// are already set, and then parses the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		var aggErr env.AggregateError
		if errors.As(err, &aggErr) && len(aggErr.Errors) > 0 {
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}

	return &cfg, nil
}
