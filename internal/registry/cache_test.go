package registry

import (
	"testing"
	"time"

	"ComputeMarket/internal/domain"
)

func TestOnlineRespectsHeartbeatTTL(t *testing.T) {
	cache := NewCache(120 * time.Second)
	now := time.Now().UTC()

	fresh := now.Add(-30 * time.Second)
	stale := now.Add(-5 * time.Minute)
	cache.Update(domain.WorkerRecord{Hotkey: "fresh", IsOnline: true, LastHeartbeat: &fresh})
	cache.Update(domain.WorkerRecord{Hotkey: "stale", IsOnline: true, LastHeartbeat: &stale})
	cache.Update(domain.WorkerRecord{Hotkey: "offline", IsOnline: false, LastHeartbeat: &fresh})
	cache.Update(domain.WorkerRecord{Hotkey: "never", IsOnline: true})

	online := cache.Online(now)
	if len(online) != 1 || online[0].Hotkey != "fresh" {
		t.Fatalf("expected only fresh worker online, got %v", online)
	}

	if !cache.IsOnline("fresh", now) {
		t.Fatal("fresh worker should be online")
	}
	if cache.IsOnline("stale", now) {
		t.Fatal("stale heartbeat should be offline")
	}
}

func TestCacheUpdateOverwrites(t *testing.T) {
	cache := NewCache(time.Minute)
	cache.Update(domain.WorkerRecord{Hotkey: "w1", Endpoint: "http://a:8091"})
	cache.Update(domain.WorkerRecord{Hotkey: "w1", Endpoint: "http://b:8091"})

	if got := cache.Endpoint("w1"); got != "http://b:8091" {
		t.Fatalf("expected latest endpoint, got %s", got)
	}
	if cache.Size() != 1 {
		t.Fatalf("expected single record, got %d", cache.Size())
	}
}
