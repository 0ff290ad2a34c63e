// Package config handles application configuration via environment variables
// and an optional YAML file.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Identity store backends.
const (
	IdentityStoreSQLite = "sqlite"
	IdentityStoreNATS   = "nats"
)

// Config holds all configurable values for the controller.
type Config struct {
	Env      string
	DeviceID string
	Secret   int
	HTTPAddr string

	// FunctionsToken guards the remote functions as a bearer token.
	FunctionsToken string

	NATSURL        string
	CheckinSubject string

	TickInterval      time.Duration
	ConfigTimeout     time.Duration
	HeartbeatInterval time.Duration
	UnlockPulse       time.Duration

	DailyRebootHour     int
	DailyRebootMinute   int
	RebootWindow        time.Duration
	DeferredRebootDelay time.Duration

	IdentityStore  string
	IdentityDBPath string
	IdentityBucket string

	AuditEndpoint string
	BatchSize     int
	BatchInterval time.Duration

	DiagRate float64
}

// file mirrors the YAML layout. Every key is optional; environment variables win.
type file struct {
	Env               string `yaml:"env"`
	DeviceID          string `yaml:"device_id"`
	Secret            string `yaml:"secret"`
	HTTPAddr          string `yaml:"http_addr"`
	FunctionsToken    string `yaml:"functions_token"`
	NATSURL           string `yaml:"nats_url"`
	CheckinSubject    string `yaml:"checkin_subject"`
	TickInterval      string `yaml:"tick_interval"`
	ConfigTimeout     string `yaml:"config_timeout"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	UnlockPulse       string `yaml:"unlock_pulse"`
	DailyRebootAt     string `yaml:"daily_reboot_at"`
	RebootWindow      string `yaml:"reboot_window"`
	DeferredReboot    string `yaml:"deferred_reboot_delay"`
	IdentityStore     string `yaml:"identity_store"`
	IdentityDBPath    string `yaml:"identity_db_path"`
	IdentityBucket    string `yaml:"identity_bucket"`
	AuditEndpoint     string `yaml:"audit_endpoint"`
	BatchSize         string `yaml:"batch_size"`
	BatchInterval     string `yaml:"batch_interval"`
	DiagRate          string `yaml:"diag_rate"`
}

// Load reads CONFIG_FILE (if set) and environment variables and populates a
// Config struct. Invalid values panic.
func Load() *Config {
	f := readFile(os.Getenv("CONFIG_FILE"))
	get := func(key, fromFile, fallback string) string {
		if fromFile != "" {
			fallback = fromFile
		}
		return getEnv(key, fallback)
	}

	hour, minute := parseClock(get("DAILY_REBOOT_AT", f.DailyRebootAt, "03:00"))

	cfg := &Config{
		Env:      get("ENV", f.Env, "development"),
		DeviceID: get("DEVICE_ID", f.DeviceID, "lock-1"),
		Secret:   parseInt("SECRET", required("SECRET", get("SECRET", f.Secret, ""))),
		HTTPAddr: get("HTTP_ADDR", f.HTTPAddr, ":8080"),

		FunctionsToken: required("FUNCTIONS_TOKEN", get("FUNCTIONS_TOKEN", f.FunctionsToken, "")),

		NATSURL:        get("NATS_URL", f.NATSURL, "nats://127.0.0.1:4222"),
		CheckinSubject: get("CHECKIN_SUBJECT", f.CheckinSubject, "checkin"),

		TickInterval:      parseDuration("TICK_INTERVAL", get("TICK_INTERVAL", f.TickInterval, "5ms")),
		ConfigTimeout:     parseDuration("CONFIG_TIMEOUT", get("CONFIG_TIMEOUT", f.ConfigTimeout, "20s")),
		HeartbeatInterval: parseDuration("HEARTBEAT_INTERVAL", get("HEARTBEAT_INTERVAL", f.HeartbeatInterval, "1s")),
		UnlockPulse:       parseDuration("UNLOCK_PULSE", get("UNLOCK_PULSE", f.UnlockPulse, "3s")),

		DailyRebootHour:     hour,
		DailyRebootMinute:   minute,
		RebootWindow:        parseDuration("REBOOT_WINDOW", get("REBOOT_WINDOW", f.RebootWindow, "10m")),
		DeferredRebootDelay: parseDuration("DEFERRED_REBOOT_DELAY", get("DEFERRED_REBOOT_DELAY", f.DeferredReboot, "5s")),

		IdentityStore:  get("IDENTITY_STORE", f.IdentityStore, IdentityStoreSQLite),
		IdentityDBPath: get("IDENTITY_DB_PATH", f.IdentityDBPath, "data/identity.db"),
		IdentityBucket: get("IDENTITY_BUCKET", f.IdentityBucket, "lock_identity"),

		AuditEndpoint: get("AUDIT_ENDPOINT", f.AuditEndpoint, "http://localhost:9000"),
		BatchSize:     parseInt("BATCH_SIZE", get("BATCH_SIZE", f.BatchSize, "5")),
		BatchInterval: parseDuration("BATCH_INTERVAL", get("BATCH_INTERVAL", f.BatchInterval, "10s")),

		DiagRate: parseFloat("DIAG_RATE", get("DIAG_RATE", f.DiagRate, "1")),
	}

	if cfg.IdentityStore != IdentityStoreSQLite && cfg.IdentityStore != IdentityStoreNATS {
		log.Panicf("Invalid IDENTITY_STORE: %q", cfg.IdentityStore)
	}
	if cfg.TickInterval <= 0 {
		log.Panicf("Invalid TICK_INTERVAL: must be positive")
	}
	if cfg.BatchInterval <= 0 {
		log.Panicf("Invalid BATCH_INTERVAL: must be positive")
	}
	return cfg
}

func required(key, val string) string {
	if val == "" {
		log.Panicf("Missing %s", key)
	}
	return val
}

func readFile(path string) file {
	var f file
	if path == "" {
		return f
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Panicf("Invalid CONFIG_FILE: %v", err)
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		log.Panicf("Invalid CONFIG_FILE %s: %v", path, err)
	}
	return f
}

func parseInt(key, val string) int {
	v, err := strconv.Atoi(val)
	if err != nil {
		log.Panicf("Invalid %s: %v", key, err)
	}
	return v
}

func parseFloat(key, val string) float64 {
	v, err := strconv.ParseFloat(val, 64)
	if err != nil || v <= 0 {
		log.Panicf("Invalid %s: %q", key, val)
	}
	return v
}

func parseDuration(key, val string) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Panicf("Invalid %s: %v", key, err)
	}
	return d
}

func parseClock(val string) (int, int) {
	t, err := time.Parse("15:04", val)
	if err != nil {
		log.Panicf("Invalid DAILY_REBOOT_AT: %v", err)
	}
	return t.Hour(), t.Minute()
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
