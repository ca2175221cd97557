// Package config loads service configuration from an optional JSON file and
// the environment, environment last. Bad values never abort startup; they
// are reported as Problems and the affected field keeps a safe default.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/esheo1787/qc-management-system/shared/events"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env               string
	ServiceName       string
	HTTPPort          int
	LogLevel          string
	ConfigPath        string
	RequestTimeoutMS  int
	RequestTimeout    time.Duration
	OIDCIssuer        string
	OIDCAudience      string
	OIDCJWKSURL       string
	JWKSTTLSeconds    int
	JWTClockSkewSec   int
	DatabaseURL       string
	DBMaxConns        int
	DBMinConns        int
	DBConnMaxIdleSec  int
	DBConnMaxLifeSec  int
	AuditEnabled      bool
	KafkaBrokers      []string
	KafkaClientID     string
	KafkaGroupID      string
	KafkaRetryMax     int
	KafkaWriteMS      int
	CaseEventsTopic   string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	HolidayCacheTTL   int
	AsynqRedisAddr    string
	AsynqRedisPass    string
	AsynqRedisDB      int
	AsynqQueue        string
	AsynqConcurrency  int
	AsynqEnabled      bool
	OutboxScanSec     int
	OutboxBatchSize   int
	OutboxMaxAttempts int
	OutboxLockTTLSec  int
	InfluxURL         string
	InfluxToken       string
	InfluxOrg         string
	InfluxBucket      string
	InfluxTimeoutMS   int
	OtelEnabled       bool
	OtelEndpoint      string
	OtelInsecure      bool
	OtelSampleRatio   float64
	CORSOrigins       []string
	CORSCredentials   bool
	CORSMaxAgeSec     int
	RateLimitRPS      float64
	RateLimitBurst    int
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	cfg := Config{
		Env:               strings.TrimSpace(os.Getenv("ENV")),
		ServiceName:       serviceNameDefault,
		HTTPPort:          httpPortDefault,
		LogLevel:          "info",
		ConfigPath:        strings.TrimSpace(os.Getenv("CONFIG_PATH")),
		RequestTimeoutMS:  30000,
		JWKSTTLSeconds:    300,
		JWTClockSkewSec:   60,
		DBMaxConns:        10,
		DBMinConns:        1,
		DBConnMaxIdleSec:  300,
		DBConnMaxLifeSec:  1800,
		KafkaRetryMax:     5,
		KafkaWriteMS:      5000,
		CaseEventsTopic:   events.TopicCaseEvents,
		HolidayCacheTTL:   300,
		AsynqQueue:        "default",
		AsynqConcurrency:  10,
		OutboxScanSec:     5,
		OutboxBatchSize:   50,
		OutboxMaxAttempts: 20,
		OutboxLockTTLSec:  30,
		InfluxTimeoutMS:   5000,
		OtelInsecure:      true,
		OtelSampleRatio:   1.0,
		CORSCredentials:   true,
		CORSMaxAgeSec:     600,
		RateLimitRPS:      20,
		RateLimitBurst:    40,
	}

	problems := make([]Problem, 0, 4)
	envProvided := cfg.Env != ""

	if repoRoot, ok := findRepoRoot(); ok && cfg.Env != "" && cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(repoRoot, "configs", cfg.Env+".json")
	}

	pathExplicit := strings.TrimSpace(os.Getenv("CONFIG_PATH")) != ""
	if fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath, pathExplicit); ok {
		problems = append(problems, fileProblems...)
		if s, found := fileString(fileData, "ENV"); found {
			cfg.Env = s
			if s != "" {
				envProvided = true
			}
		}
		applyFile(&cfg, fileData, &problems)
	} else {
		problems = append(problems, fileProblems...)
	}

	applyEnv(&cfg, &problems)

	// Without an explicit JWKS URL the issuer's well-known location is used.
	if cfg.OIDCIssuer != "" && strings.TrimSpace(cfg.OIDCJWKSURL) == "" {
		cfg.OIDCJWKSURL = strings.TrimRight(cfg.OIDCIssuer, "/") + "/.well-known/jwks.json"
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}

	validate(&cfg, httpPortDefault, &problems)
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond

	return cfg, problems
}

// binding ties one config key to its field. Raw values arrive as strings
// from the environment and as decoded JSON from a config file; both funnel
// through the same coercions, with the environment applied last.
type binding struct {
	key     string
	alias   string
	message string
	apply   func(v any) bool
}

func (c *Config) bindings() []binding {
	str := func(key string, dst *string) binding {
		return binding{key: key, apply: func(v any) bool {
			if s, ok := asString(v); ok && s != "" {
				*dst = s
			}
			return true
		}}
	}
	num := func(key string, dst *int) binding {
		return binding{key: key, message: key + " must be an integer", apply: func(v any) bool {
			n, ok := asInt(v)
			if ok {
				*dst = n
			}
			return ok
		}}
	}
	flag := func(key string, dst *bool) binding {
		return binding{key: key, message: key + " must be a boolean", apply: func(v any) bool {
			b, ok := asBool(v)
			if ok {
				*dst = b
			}
			return ok
		}}
	}
	ratio := func(key string, dst *float64) binding {
		return binding{key: key, message: key + " must be a number", apply: func(v any) bool {
			f, ok := asFloat(v)
			if ok {
				*dst = f
			}
			return ok
		}}
	}
	list := func(key string, dst *[]string) binding {
		return binding{key: key, apply: func(v any) bool {
			if items, ok := asStrings(v); ok {
				*dst = items
			}
			return true
		}}
	}

	return []binding{
		str("SERVICE_NAME", &c.ServiceName),
		aliased(num("HTTP_PORT", &c.HTTPPort), "PORT"),
		str("LOG_LEVEL", &c.LogLevel),
		num("REQUEST_TIMEOUT_MS", &c.RequestTimeoutMS),
		str("OIDC_ISSUER", &c.OIDCIssuer),
		str("OIDC_AUDIENCE", &c.OIDCAudience),
		str("OIDC_JWKS_URL", &c.OIDCJWKSURL),
		num("JWKS_CACHE_TTL_SECONDS", &c.JWKSTTLSeconds),
		num("JWT_CLOCK_SKEW_SECONDS", &c.JWTClockSkewSec),
		str("DATABASE_URL", &c.DatabaseURL),
		num("DB_MAX_CONNS", &c.DBMaxConns),
		num("DB_MIN_CONNS", &c.DBMinConns),
		num("DB_CONN_MAX_IDLE_SECONDS", &c.DBConnMaxIdleSec),
		num("DB_CONN_MAX_LIFETIME_SECONDS", &c.DBConnMaxLifeSec),
		flag("AUDIT_ENABLED", &c.AuditEnabled),
		list("KAFKA_BROKERS", &c.KafkaBrokers),
		str("KAFKA_CLIENT_ID", &c.KafkaClientID),
		str("KAFKA_CONSUMER_GROUP", &c.KafkaGroupID),
		num("KAFKA_RETRY_MAX", &c.KafkaRetryMax),
		num("KAFKA_WRITE_TIMEOUT_MS", &c.KafkaWriteMS),
		str("KAFKA_CASE_EVENTS_TOPIC", &c.CaseEventsTopic),
		str("REDIS_ADDR", &c.RedisAddr),
		str("REDIS_PASSWORD", &c.RedisPassword),
		num("REDIS_DB", &c.RedisDB),
		num("HOLIDAY_CACHE_TTL_SECONDS", &c.HolidayCacheTTL),
		str("ASYNQ_REDIS_ADDR", &c.AsynqRedisAddr),
		str("ASYNQ_REDIS_PASSWORD", &c.AsynqRedisPass),
		num("ASYNQ_REDIS_DB", &c.AsynqRedisDB),
		str("ASYNQ_QUEUE", &c.AsynqQueue),
		num("ASYNQ_CONCURRENCY", &c.AsynqConcurrency),
		flag("ASYNQ_ENABLED", &c.AsynqEnabled),
		num("OUTBOX_SCAN_INTERVAL_SECONDS", &c.OutboxScanSec),
		num("OUTBOX_BATCH_SIZE", &c.OutboxBatchSize),
		num("OUTBOX_MAX_ATTEMPTS", &c.OutboxMaxAttempts),
		num("OUTBOX_LOCK_TTL_SECONDS", &c.OutboxLockTTLSec),
		str("INFLUX_URL", &c.InfluxURL),
		str("INFLUX_TOKEN", &c.InfluxToken),
		str("INFLUX_ORG", &c.InfluxOrg),
		str("INFLUX_BUCKET", &c.InfluxBucket),
		num("INFLUX_TIMEOUT_MS", &c.InfluxTimeoutMS),
		flag("OTEL_ENABLED", &c.OtelEnabled),
		str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OtelEndpoint),
		flag("OTEL_EXPORTER_OTLP_INSECURE", &c.OtelInsecure),
		ratio("OTEL_SAMPLE_RATIO", &c.OtelSampleRatio),
		list("CORS_ALLOWED_ORIGINS", &c.CORSOrigins),
		flag("CORS_ALLOW_CREDENTIALS", &c.CORSCredentials),
		num("CORS_MAX_AGE_SECONDS", &c.CORSMaxAgeSec),
		ratio("RATE_LIMIT_RPS", &c.RateLimitRPS),
		num("RATE_LIMIT_BURST", &c.RateLimitBurst),
	}
}

func aliased(b binding, alias string) binding {
	b.alias = alias
	return b
}

func applyFile(cfg *Config, raw map[string]any, problems *[]Problem) {
	byKey := make(map[string]binding)
	for _, b := range cfg.bindings() {
		byKey[b.key] = b
	}
	for k, v := range raw {
		b, ok := byKey[strings.ToUpper(strings.TrimSpace(k))]
		if !ok {
			continue
		}
		if !b.apply(v) {
			*problems = append(*problems, Problem{Field: b.key, Message: b.message})
		}
	}
}

func applyEnv(cfg *Config, problems *[]Problem) {
	for _, b := range cfg.bindings() {
		v := strings.TrimSpace(os.Getenv(b.key))
		if v == "" && b.alias != "" {
			v = strings.TrimSpace(os.Getenv(b.alias))
		}
		if v == "" {
			continue
		}
		if !b.apply(v) {
			*problems = append(*problems, Problem{Field: b.key, Message: b.message})
		}
	}
}

// intBound is a lower bound on an int field; values below it are reported
// and replaced with the fallback.
type intBound struct {
	field    string
	dst      *int
	min      int
	fallback int
}

func validate(cfg *Config, httpPortDefault int, problems *[]Problem) {
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}

	bounds := []intBound{
		{"REQUEST_TIMEOUT_MS", &cfg.RequestTimeoutMS, 1, 30000},
		{"JWKS_CACHE_TTL_SECONDS", &cfg.JWKSTTLSeconds, 1, 300},
		{"JWT_CLOCK_SKEW_SECONDS", &cfg.JWTClockSkewSec, 0, 60},
		{"DB_MAX_CONNS", &cfg.DBMaxConns, 1, 10},
		{"DB_MIN_CONNS", &cfg.DBMinConns, 0, 1},
		{"DB_CONN_MAX_IDLE_SECONDS", &cfg.DBConnMaxIdleSec, 1, 300},
		{"DB_CONN_MAX_LIFETIME_SECONDS", &cfg.DBConnMaxLifeSec, 1, 1800},
		{"KAFKA_RETRY_MAX", &cfg.KafkaRetryMax, 0, 5},
		{"KAFKA_WRITE_TIMEOUT_MS", &cfg.KafkaWriteMS, 1, 5000},
		{"REDIS_DB", &cfg.RedisDB, 0, 0},
		{"HOLIDAY_CACHE_TTL_SECONDS", &cfg.HolidayCacheTTL, 1, 300},
		{"ASYNQ_REDIS_DB", &cfg.AsynqRedisDB, 0, 0},
		{"ASYNQ_CONCURRENCY", &cfg.AsynqConcurrency, 1, 10},
		{"OUTBOX_SCAN_INTERVAL_SECONDS", &cfg.OutboxScanSec, 1, 5},
		{"OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize, 1, 50},
		{"OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts, 1, 20},
		{"OUTBOX_LOCK_TTL_SECONDS", &cfg.OutboxLockTTLSec, 1, 30},
		{"INFLUX_TIMEOUT_MS", &cfg.InfluxTimeoutMS, 1, 5000},
		{"CORS_MAX_AGE_SECONDS", &cfg.CORSMaxAgeSec, 0, 600},
		{"RATE_LIMIT_BURST", &cfg.RateLimitBurst, 0, 40},
	}
	for _, b := range bounds {
		if *b.dst < b.min {
			want := "> 0"
			if b.min == 0 {
				want = ">= 0"
			}
			*problems = append(*problems, Problem{Field: b.field, Message: fmt.Sprintf("%s must be %s", b.field, want)})
			*b.dst = b.fallback
		}
	}

	if cfg.DBMinConns > cfg.DBMaxConns {
		*problems = append(*problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be <= DB_MAX_CONNS"})
		cfg.DBMinConns = cfg.DBMaxConns
	}
	if strings.TrimSpace(cfg.CaseEventsTopic) == "" {
		*problems = append(*problems, Problem{Field: "KAFKA_CASE_EVENTS_TOPIC", Message: "KAFKA_CASE_EVENTS_TOPIC must not be empty"})
		cfg.CaseEventsTopic = events.TopicCaseEvents
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		*problems = append(*problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}
	if cfg.RateLimitRPS < 0 {
		*problems = append(*problems, Problem{Field: "RATE_LIMIT_RPS", Message: "RATE_LIMIT_RPS must be >= 0"})
		cfg.RateLimitRPS = 20
	}
}

// findRepoRoot walks up from the working directory looking for configs/, so
// services started from cmd/ subdirectories still find ENV-named files.
func findRepoRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 8; i++ {
		if fi, err := os.Stat(filepath.Join(dir, "configs")); err == nil && fi.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func loadConfigFile(path string, explicit bool) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if explicit && errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		if explicit {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
		}
		return nil, nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}, false
	}
	return raw, nil, true
}

func fileString(raw map[string]any, key string) (string, bool) {
	for k, v := range raw {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			s, ok := v.(string)
			return strings.TrimSpace(s), ok
		}
	}
	return "", false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return strings.TrimSpace(s), ok
}

// Values reach the coercions as string (environment), or as the decoded JSON
// forms: string, bool, json.Number, and []any.
func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y":
			return true, true
		case "false", "0", "no", "n":
			return false, true
		}
	}
	return false, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func asStrings(v any) ([]string, bool) {
	switch t := v.(type) {
	case string:
		return parseCSV(t), true
	case []any:
		return parseAnyCSV(t), true
	default:
		return nil, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
