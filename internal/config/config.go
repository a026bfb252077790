package config

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string           `yaml:"env" env-default:"development"` // environment
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Admin      AdminConfig      `yaml:"admin"`
	Migrations MigrationsConfig `yaml:"migrations"`
	RCON       RCONConfig       `yaml:"rcon"`
	Redis      RedisConfig      `yaml:"redis"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Currency   CurrencyConfig   `yaml:"currency"`
	PayPal     PayPalConfig     `yaml:"paypal"`
	Stripe     StripeConfig     `yaml:"stripe"`
	ECPay      ECPayConfig      `yaml:"ecpay"`
	Uploads    UploadsConfig    `yaml:"uploads"`
}

// HTTPServerConfig структура http сервера
type HTTPServerConfig struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"30s"` // с запасом на вызовы провайдеров и RCON
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// DatabaseConfig структура по работе с БД
type DatabaseConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"-" env:"DB_PASSWORD" env-required:"true"`
	Name     string `yaml:"name" env-required:"true"`
}

// JWTConfig секреты для токенов игрока и администратора
type JWTConfig struct {
	PlayerSecret  string `yaml:"-" env:"PLAYER_JWT_SECRET" env-required:"true"`
	AdminSecret   string `yaml:"-" env:"ADMIN_JWT_SECRET" env-required:"true"`
	AdminTokenTTL int    `yaml:"admin_token_ttl" env-default:"480"` // минуты
}

// AdminConfig bcrypt-хэш пароля администратора
type AdminConfig struct {
	PasswordHash string `yaml:"-" env:"ADMIN_PASSWORD_HASH"`
}

type MigrationsConfig struct {
	Path string `yaml:"path" env-default:"./migrations"`
}

// RCONConfig канал удалённых команд игрового сервера
type RCONConfig struct {
	Address     string        `yaml:"address" env-default:"localhost:25575"`
	Password    string        `yaml:"-" env:"RCON_PASSWORD"`
	DialTimeout time.Duration `yaml:"dial_timeout" env-default:"3s"`
	Timeout     time.Duration `yaml:"timeout" env-default:"5s"`
}

// RedisConfig пустой адрес отключает защиту от повторов колбэков
type RedisConfig struct {
	Address   string        `yaml:"address"`
	Password  string        `yaml:"-" env:"REDIS_PASSWORD"`
	DB        int           `yaml:"db" env-default:"0"`
	ReplayTTL time.Duration `yaml:"replay_ttl" env-default:"24h"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env-default:"5"`
	Burst int     `yaml:"burst" env-default:"10"`
}

// CurrencyConfig курсы задаются относительно базовой валюты (курс базы = 1)
type CurrencyConfig struct {
	Base          string             `yaml:"base" env-default:"TWD"`
	Default       string             `yaml:"default" env-default:"TWD"`
	Rates         map[string]float64 `yaml:"rates"`
	Symbols       map[string]string  `yaml:"symbols"`
	StripeMinimum map[string]float64 `yaml:"stripe_minimum"` // в основных единицах валюты
}

type PayPalConfig struct {
	ClientID string `yaml:"client_id"`
	Secret   string `yaml:"-" env:"PAYPAL_CLIENT_SECRET"`
	Mode     string `yaml:"mode" env-default:"sandbox"` // sandbox | live
	Currency string `yaml:"currency" env-default:"USD"`
}

type StripeConfig struct {
	PublishableKey string `yaml:"publishable_key"`
	SecretKey      string `yaml:"-" env:"STRIPE_SECRET_KEY"`
}

type ECPayConfig struct {
	MerchantID     string `yaml:"merchant_id"`
	HashKey        string `yaml:"-" env:"ECPAY_HASH_KEY"`
	HashIV         string `yaml:"-" env:"ECPAY_HASH_IV"`
	Endpoint       string `yaml:"endpoint" env-default:"https://payment-stage.ecpay.com.tw/Cashier/AioCheckOut/V5"`
	ReturnURL      string `yaml:"return_url"`
	PaymentInfoURL string `yaml:"payment_info_url"`
	ClientBackURL  string `yaml:"client_back_url"`
}

type UploadsConfig struct {
	Dir          string `yaml:"dir" env-default:"./uploads"`
	PublicPrefix string `yaml:"public_prefix" env-default:"/uploads"`
	MaxSize      int64  `yaml:"max_size" env-default:"5242880"`
}

// PayPalEnabled сообщает, настроен ли PayPal
func (c *Config) PayPalEnabled() bool {
	return c.PayPal.ClientID != "" && c.PayPal.Secret != ""
}

func (c *Config) StripeEnabled() bool {
	return c.Stripe.SecretKey != ""
}

func (c *Config) ECPayEnabled() bool {
	return c.ECPay.MerchantID != "" && c.ECPay.HashKey != "" && c.ECPay.HashIV != ""
}

// MustLoad - если не загружаем - паникуем
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		log.Fatal("CONFIG_PATH not exists")
	}
	return MustLoadByPath(configPath)
}

func fetchConfigPath() string {
	var path string

	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

func MustLoadByPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can't read config file %s: %v", configPath, err)
	}

	return &cfg
}
