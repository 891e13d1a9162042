package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
mongo:
  uri: "mongodb://localhost:27017"
  database: "chat"
redis:
  addr: "localhost:6379"
kafka:
  brokers: ["localhost:9092"]
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Chat.PageSize != 50 || cfg.Chat.RetentionCap != 150 {
		t.Errorf("chat defaults = {page:%d cap:%d}", cfg.Chat.PageSize, cfg.Chat.RetentionCap)
	}
	if cfg.Chat.MaxAttachmentBytes != 25<<20 {
		t.Errorf("MaxAttachmentBytes = %d", cfg.Chat.MaxAttachmentBytes)
	}
	if cfg.Assist.SuggestDebounceMS != 500 || cfg.Assist.ModerateDebounceMS != 800 || cfg.Assist.ThrottleSpacingMS != 200 {
		t.Errorf("assist defaults = %+v", cfg.Assist)
	}
	if cfg.Kafka.EventTopic != "chat.events" || cfg.Kafka.GroupID != "chat-gateway" {
		t.Errorf("kafka defaults = %+v", cfg.Kafka)
	}
	if cfg.SweepEvery != 30*time.Second || cfg.TypingWindow != 6*time.Second {
		t.Errorf("derived durations = {sweep:%v typing:%v}", cfg.SweepEvery, cfg.TypingWindow)
	}
	if cfg.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.ReadTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load accepted a missing file")
	}
}
