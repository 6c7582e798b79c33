package config

import (
	"encoding/json"
	"log"
	"os"
)

type Configuration struct {
	ApiPort string `json:"api_port"`
	LogPath string `json:"log_path"`

	Database string `json:"database"` // "sqlite3" or "postgres"
	DbHost   string `json:"db_host"`
	DbPort   string `json:"db_port"`
	DbUser   string `json:"db_user"`
	DbName   string `json:"db_name"`
	DbPass   string `json:"db_pass"`

	// CredentialKey is the hex-encoded 32-byte AES key channel access
	// tokens are sealed with.
	CredentialKey string `json:"credential_key"`

	Messenger struct {
		VerifyToken string `json:"verify_token"`
		AppSecret   string `json:"app_secret"`
		ApiVersion  string `json:"api_version"`
		BaseURL     string `json:"base_url"` // override for sandbox/testing
	} `json:"messenger"`

	Telegram struct {
		BaseURL string `json:"base_url"` // override for sandbox/testing
	} `json:"telegram"`

	Notifier struct {
		Enabled  bool   `json:"enabled"`
		URL      string `json:"url"`
		Exchange string `json:"exchange"`
	} `json:"notifier"`

	Worker struct {
		PollIntervalMS int `json:"poll_interval_ms"`
		BatchSize      int `json:"batch_size"`
		MaxAttempts    int `json:"max_attempts"`
		RetryBaseMS    int `json:"retry_base_ms"`
	} `json:"worker"`

	Locks struct {
		TTLSeconds  int `json:"ttl_seconds"`
		MaxAttempts int `json:"max_attempts"`
		BaseDelayMS int `json:"base_delay_ms"`
	} `json:"locks"`
}

func Get(path string) Configuration {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}
	var c Configuration
	if err := json.Unmarshal(b, &c); err != nil {
		log.Fatal(err)
	}

	// defaults
	if c.ApiPort == "" {
		c.ApiPort = "8080"
	}
	if c.LogPath == "" {
		c.LogPath = "logs/server.log"
	}
	if c.Database == "" {
		c.Database = "sqlite3"
	}
	if c.Messenger.ApiVersion == "" {
		c.Messenger.ApiVersion = "v20.0"
	}
	if c.Notifier.Exchange == "" {
		c.Notifier.Exchange = "chatbridge.events"
	}
	if c.Worker.PollIntervalMS <= 0 {
		c.Worker.PollIntervalMS = 1000
	}
	if c.Worker.BatchSize <= 0 {
		c.Worker.BatchSize = 50
	}
	if c.Worker.MaxAttempts <= 0 {
		c.Worker.MaxAttempts = 5
	}
	if c.Worker.RetryBaseMS <= 0 {
		c.Worker.RetryBaseMS = 2000
	}
	if c.Locks.TTLSeconds <= 0 {
		c.Locks.TTLSeconds = 30
	}
	if c.Locks.MaxAttempts <= 0 {
		c.Locks.MaxAttempts = 5
	}
	if c.Locks.BaseDelayMS <= 0 {
		c.Locks.BaseDelayMS = 25
	}

	return c
}
