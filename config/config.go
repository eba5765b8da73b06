package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// ErrMissingConfig is wrapped by every Require* check.
var ErrMissingConfig = errors.New("missing configuration")

const (
	DedupeAllow       = "allow"
	DedupeSkipPending = "skip-pending"
)

type ShopifyConfig struct {
	Domain            string
	Token             string
	APIVersion        string
	LocationID        string
	UpdateFulfillment bool
	NotifyCustomer    bool
	MaxRetries        int
	BackoffBase       time.Duration
	Timeout           time.Duration
}

type BringConfig struct {
	APIUID          string
	APIKey          string
	CustomerNumber  string
	ProductID       string
	ClientURL       string
	BookingURL      string
	TestIndicator   bool
	DryRun          bool
	DefaultWeightKg decimal.Decimal
	LengthCm        int
	WidthCm         int
	HeightCm        int
	GoodsDesc       string
	Timeout         time.Duration
}

// PartyConfig is a fixed shipping identity, either our own sender or the
// return address.
type PartyConfig struct {
	Name        string
	Address     string
	Address2    string
	PostalCode  string
	City        string
	CountryCode string
	Reference   string
	ContactName string
	Email       string
	Phone       string
}

func (p PartyConfig) IsSet() bool {
	return p.Name != "" && p.Address != ""
}

type EmailConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Folder          string
	SenderAllowlist []string
	SubjectPattern  string
	AttachmentDir   string
	FetchLimit      int
}

type RedisConfig struct {
	Addr    string
	LockKey string
	LockTTL time.Duration
}

type ScheduleConfig struct {
	Fulfillment string
	Inbox       string
	Tracking    string
}

type Config struct {
	Env           string
	LogLevel      string
	LogFormat     string
	LogsDirectory string

	DSN          string
	HTTPAddr     string
	IngressToken string
	CORSOrigins  []string

	LabelDir     string
	OrdersDir    string
	DedupePolicy string

	Schedules ScheduleConfig
	Redis     *RedisConfig
	Shopify   *ShopifyConfig
	Bring     *BringConfig
	Sender    PartyConfig
	ReturnTo  PartyConfig
	Email     *EmailConfig
}

// LoadConfig reads secrets.env and .env (if present) and then the process
// environment. It is meant to be called once at startup.
func LoadConfig() *Config {
	if _, err := os.Stat("secrets.env"); err == nil {
		_ = godotenv.Overload("secrets.env")
	}
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	return &Config{
		Env:           getEnv("ENV", "dev"),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "console")),
		LogsDirectory: os.Getenv("LOGS_DIRECTORY"),
		DSN:           getEnv("DATABASE_DSN", "packchicken.db"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":5050"),
		IngressToken:  os.Getenv("INGRESS_TOKEN"),
		CORSOrigins:   getList("CORS_ALLOWED_ORIGINS"),
		LabelDir:      getEnv("LABEL_DIR", "./LABELS"),
		OrdersDir:     getEnv("ORDERS_DIR", "./ORDERS"),
		DedupePolicy:  getEnv("DEDUPE_POLICY", DedupeAllow),
		Schedules: ScheduleConfig{
			Fulfillment: os.Getenv("WORKER_SCHEDULE"),
			Inbox:       os.Getenv("EMAIL_SCHEDULE"),
			Tracking:    os.Getenv("TRACKING_SCHEDULE"),
		},
		Redis: &RedisConfig{
			Addr:    os.Getenv("REDIS_ADDR"),
			LockKey: getEnv("REDIS_LOCK_KEY", "packchicken:process-run"),
			LockTTL: getDuration("REDIS_LOCK_TTL", 15*time.Minute),
		},
		Shopify: &ShopifyConfig{
			Domain:            normalizeDomain(os.Getenv("SHOPIFY_DOMAIN")),
			Token:             getEnv("SHOPIFY_TOKEN", os.Getenv("SHOPIFY_ACCESS_TOKEN")),
			APIVersion:        getEnv("SHOPIFY_API_VERSION", "2024-10"),
			LocationID:        os.Getenv("SHOPIFY_LOCATION"),
			UpdateFulfillment: getBool("SHOPIFY_UPDATE_FULFILLMENT", false),
			NotifyCustomer:    getBool("SHOPIFY_NOTIFY_CUSTOMER", true),
			MaxRetries:        getInt("SHOPIFY_MAX_RETRIES", 5),
			BackoffBase:       getDuration("SHOPIFY_BACKOFF_BASE", 600*time.Millisecond),
			Timeout:           getDuration("SHOPIFY_TIMEOUT", 20*time.Second),
		},
		Bring: &BringConfig{
			APIUID:          getEnv("BRING_API_UID", os.Getenv("BRING_UID")),
			APIKey:          getEnv("BRING_API_KEY", os.Getenv("BRING_KEY")),
			CustomerNumber:  strings.TrimSpace(getEnv("BRING_CUSTOMER_NUMBER", "5")),
			ProductID:       getEnv("BRING_PRODUCT", "SERVICEPAKKE"),
			ClientURL:       getEnv("BRING_CLIENT_URL", "http://localhost:8000"),
			BookingURL:      getEnv("BRING_BOOKING_URL", "https://api.bring.com/booking/api/create"),
			TestIndicator:   getBool("BRING_TEST_INDICATOR", true),
			DryRun:          getBool("DRY_RUN", false),
			DefaultWeightKg: getDecimal("BRING_WEIGHT_KG", decimal.RequireFromString("1.1")),
			LengthCm:        getInt("BRING_LENGTH_CM", 23),
			WidthCm:         getInt("BRING_WIDTH_CM", 10),
			HeightCm:        getInt("BRING_HEIGHT_CM", 13),
			GoodsDesc:       getEnv("BRING_GOODS_DESCRIPTION", "Goods"),
			Timeout:         getDuration("BRING_TIMEOUT", 30*time.Second),
		},
		Sender: PartyConfig{
			Name:        getEnv("SENDER_NAME", "PackChicken Sender"),
			Address:     getEnv("SENDER_ADDRESS", "Testveien 2"),
			Address2:    os.Getenv("SENDER_ADDRESS2"),
			PostalCode:  getEnv("SENDER_POSTCODE", "0150"),
			City:        getEnv("SENDER_CITY", "Oslo"),
			CountryCode: getEnv("SENDER_COUNTRY", "NO"),
			Reference:   os.Getenv("SENDER_REFERENCE"),
			ContactName: os.Getenv("SENDER_CONTACT"),
			Email:       os.Getenv("SENDER_EMAIL"),
			Phone:       os.Getenv("SENDER_PHONE"),
		},
		ReturnTo: PartyConfig{
			Name:        os.Getenv("RETURN_NAME"),
			Address:     os.Getenv("RETURN_ADDRESS"),
			Address2:    os.Getenv("RETURN_ADDRESS2"),
			PostalCode:  os.Getenv("RETURN_POSTCODE"),
			City:        os.Getenv("RETURN_CITY"),
			CountryCode: getEnv("RETURN_COUNTRY", "NO"),
			ContactName: os.Getenv("RETURN_CONTACT"),
			Email:       os.Getenv("RETURN_EMAIL"),
			Phone:       os.Getenv("RETURN_PHONE"),
		},
		Email: &EmailConfig{
			Host:            getEnv("EMAIL_HOST", "imap.gmail.com"),
			Port:            getInt("EMAIL_PORT", 993),
			User:            os.Getenv("EMAIL_USER"),
			Password:        os.Getenv("EMAIL_PASSWORD"),
			Folder:          getEnv("EMAIL_FOLDER", "INBOX"),
			SenderAllowlist: lower(getList("EMAIL_SENDER_ALLOWLIST")),
			SubjectPattern:  getEnv("EMAIL_SUBJECT_REGEX", ".*"),
			AttachmentDir:   getEnv("ATTACHMENT_DIR", "./attachments"),
			FetchLimit:      getInt("EMAIL_FETCH_LIMIT", 25),
		},
	}
}

func (c *Config) RequireBring() error {
	if c.Bring == nil || c.Bring.APIUID == "" || c.Bring.APIKey == "" {
		return fmt.Errorf("%w: set BRING_API_KEY and BRING_API_UID", ErrMissingConfig)
	}
	return nil
}

func (c *Config) RequireShopify() error {
	if c.Shopify == nil || c.Shopify.Domain == "" || c.Shopify.Token == "" {
		return fmt.Errorf("%w: set SHOPIFY_DOMAIN and SHOPIFY_TOKEN", ErrMissingConfig)
	}
	return nil
}

func (c *Config) RequireEmail() error {
	if c.Email == nil || c.Email.User == "" || c.Email.Password == "" {
		return fmt.Errorf("%w: set EMAIL_USER and EMAIL_PASSWORD", ErrMissingConfig)
	}
	return nil
}

// ShopifyEnabled reports whether storefront credentials are present.
func (c *Config) ShopifyEnabled() bool {
	return c.RequireShopify() == nil
}

// Summary is logged at startup. Secrets are reported as set/missing only.
func (c *Config) Summary() []string {
	return []string{
		fmt.Sprintf("ENV=%s LOG_LEVEL=%s LOG_FORMAT=%s", c.Env, c.LogLevel, c.LogFormat),
		fmt.Sprintf("Shopify: domain=%s, token=%s", setOrMissing(c.Shopify.Domain), setOrMissing(c.Shopify.Token)),
		fmt.Sprintf("Bring: api_key=%s, uid=%s, customer=%s, test=%t, dry_run=%t",
			setOrMissing(c.Bring.APIKey), setOrMissing(c.Bring.APIUID), c.Bring.CustomerNumber, c.Bring.TestIndicator, c.Bring.DryRun),
	}
}

func setOrMissing(v string) string {
	if v == "" {
		return "missing"
	}
	return "set"
}

func normalizeDomain(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "http") {
		v = "https://" + v
	}
	return strings.TrimRight(v, "/")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return n
}

// getDuration accepts Go durations ("30s") or plain seconds ("30").
func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lower(in []string) []string {
	for i := range in {
		in[i] = strings.ToLower(in[i])
	}
	return in
}
