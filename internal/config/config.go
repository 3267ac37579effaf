package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port       string
	CORSOrigin string
	JWTSecret  string

	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string

	Mpesa Mpesa
}

// Mpesa holds the Daraja credentials and STK push constants.
type Mpesa struct {
	BaseURL          string
	ConsumerKey      string
	ConsumerSecret   string
	ShortCode        string
	Passkey          string
	CallbackURL      string
	AccountReference string
	TransactionDesc  string
	TransactionType  string
	Timezone         string
	ClientTimeout    time.Duration
}

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("STORE_DRIVER", DriverMongo)
	v.SetDefault("MONGO_DATABASE", "mpesadb")
	v.SetDefault("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke")
	v.SetDefault("MPESA_SHORTCODE", "174379")
	v.SetDefault("MPESA_ACCOUNT_REFERENCE", "Bablaz Sipjoint")
	v.SetDefault("MPESA_TRANSACTION_DESC", "STK Push Payment")
	v.SetDefault("MPESA_TRANSACTION_TYPE", "CustomerPayBillOnline")
	v.SetDefault("MPESA_TIMEZONE", "Africa/Nairobi")
	v.SetDefault("HTTP_CLIENT_TIMEOUT", "30s")
}

// keys are bound to the environment one by one; a YAML file uses the same names.
var keys = []string{
	"PORT", "CORS_ORIGIN", "JWT_SECRET",
	"STORE_DRIVER", "MONGOURI", "MONGO_DATABASE", "DATABASE_URL",
	"MPESA_BASE_URL", "MPESA_CONSUMER_KEY", "MPESA_CONSUMER_SECRET", "MPESA_SHORTCODE",
	"MPESA_PASSKEY", "MPESA_CALLBACK_URL", "MPESA_ACCOUNT_REFERENCE", "MPESA_TRANSACTION_DESC",
	"MPESA_TRANSACTION_TYPE", "MPESA_TIMEZONE", "HTTP_CLIENT_TIMEOUT",
}

// Load reads .env (if present), an optional YAML file, then the environment.
// Environment variables win over the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Error loading .env: %s", err)
	}

	v := viper.New()
	setDefaults(v)
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:          v.GetString("PORT"),
		CORSOrigin:    strings.TrimSpace(v.GetString("CORS_ORIGIN")),
		JWTSecret:     v.GetString("JWT_SECRET"),
		StoreDriver:   strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		MongoURI:      v.GetString("MONGOURI"),
		MongoDatabase: v.GetString("MONGO_DATABASE"),
		DatabaseURL:   v.GetString("DATABASE_URL"),
		Mpesa: Mpesa{
			BaseURL:          strings.TrimRight(v.GetString("MPESA_BASE_URL"), "/"),
			ConsumerKey:      v.GetString("MPESA_CONSUMER_KEY"),
			ConsumerSecret:   v.GetString("MPESA_CONSUMER_SECRET"),
			ShortCode:        v.GetString("MPESA_SHORTCODE"),
			Passkey:          v.GetString("MPESA_PASSKEY"),
			CallbackURL:      v.GetString("MPESA_CALLBACK_URL"),
			AccountReference: v.GetString("MPESA_ACCOUNT_REFERENCE"),
			TransactionDesc:  v.GetString("MPESA_TRANSACTION_DESC"),
			TransactionType:  v.GetString("MPESA_TRANSACTION_TYPE"),
			Timezone:         v.GetString("MPESA_TIMEZONE"),
			ClientTimeout:    v.GetDuration("HTTP_CLIENT_TIMEOUT"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGOURI environment variable not set")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable not set")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q, must be %s or %s", c.StoreDriver, DriverMongo, DriverPostgres)
	}

	required := []struct{ key, value string }{
		{"MPESA_CONSUMER_KEY", c.Mpesa.ConsumerKey},
		{"MPESA_CONSUMER_SECRET", c.Mpesa.ConsumerSecret},
		{"MPESA_SHORTCODE", c.Mpesa.ShortCode},
		{"MPESA_PASSKEY", c.Mpesa.Passkey},
		{"MPESA_CALLBACK_URL", c.Mpesa.CallbackURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s environment variable not set", r.key)
		}
	}
	if c.Mpesa.ClientTimeout <= 0 {
		return fmt.Errorf("HTTP_CLIENT_TIMEOUT must be positive")
	}
	return nil
}

// Location resolves the configured gateway timezone.
func (m Mpesa) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid MPESA_TIMEZONE %q: %w", m.Timezone, err)
	}
	return loc, nil
}
