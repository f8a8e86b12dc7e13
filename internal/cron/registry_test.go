package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	sync := &stubJob{name: "order_sync"}
	retry := &stubJob{name: "wallet_retry"}
	registry := NewRegistry(sync)
	registry.Register(retry, 5*time.Minute)

	got := registry.Jobs()
	if len(got) != 2 || got[0] != sync || got[1] != retry {
		t.Fatalf("unexpected jobs: %+v", got)
	}
}

func TestRegistryRegisterNormalizesInput(t *testing.T) {
	registry := NewRegistry()
	registry.Register(nil, time.Minute)
	registry.Register(&stubJob{name: "reconcile"}, -time.Second)

	entries := registry.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected nil job to be dropped, got %d entries", len(entries))
	}
	if entries[0].Every != 0 {
		t.Fatalf("negative cadence should clamp to every tick, got %s", entries[0].Every)
	}
}

func TestRegistryEntriesReturnsCopy(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "outbox_retention"})

	entries := registry.Entries()
	entries[0].Job = nil
	entries[0].Every = time.Hour

	fresh := registry.Entries()[0]
	if fresh.Job == nil || fresh.Every != 0 {
		t.Fatalf("caller mutation leaked into registry: %+v", fresh)
	}
}
