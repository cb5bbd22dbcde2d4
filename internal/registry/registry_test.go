package registry

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open registry: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testArtifact(store *Store, now time.Time) Artifact {
	payload := []byte(`{"weights":[0.5,-0.2],"bias":0.1}`)
	return Artifact{
		Version:      store.NextVersion(now),
		CreatedAt:    now,
		Checksum:     Checksum(payload),
		Payload:      payload,
		Accuracy:     0.91,
		TrainSamples: 400,
	}
}

func TestOpen(t *testing.T) {
	tempDir := t.TempDir()

	store, err := Open(tempDir)
	if err != nil {
		t.Fatalf("Failed to open registry: %v", err)
	}
	defer store.Close()

	dbPath := filepath.Join(tempDir, "driftwatch-registry.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing", "nested")); err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	if err := store.Close(); err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestNextVersion_Monotonic(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	v1 := store.NextVersion(now)
	v2 := store.NextVersion(now)
	v3 := store.NextVersion(now.Add(time.Second))

	if v1 == v2 {
		t.Errorf("Same-second versions collide: %s", v1)
	}
	if !(v1 < v2 && v2 < v3) {
		t.Errorf("Versions not monotonic: %s, %s, %s", v1, v2, v3)
	}
}

func TestRegisterAndGet(t *testing.T) {
	store := newTestStore(t)
	artifact := testArtifact(store, time.Now())

	if err := store.Register(artifact, false); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := store.Get(artifact.Version)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Checksum != artifact.Checksum {
		t.Errorf("Checksum mismatch: got %s, want %s", got.Checksum, artifact.Checksum)
	}
	if got.Accuracy != artifact.Accuracy {
		t.Errorf("Accuracy mismatch: got %f, want %f", got.Accuracy, artifact.Accuracy)
	}

	// An unpromoted registration leaves no champion.
	if _, err := store.Champion(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for champion, got: %v", err)
	}
}

func TestRegister_RejectsBadChecksum(t *testing.T) {
	store := newTestStore(t)
	artifact := testArtifact(store, time.Now())
	artifact.Checksum = "deadbeef"

	if err := store.Register(artifact, false); !errors.Is(err, ErrIntegrity) {
		t.Errorf("Expected ErrIntegrity, got: %v", err)
	}
}

func TestRegister_Promote(t *testing.T) {
	store := newTestStore(t)
	artifact := testArtifact(store, time.Now())

	if err := store.Register(artifact, true); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	champion, err := store.Champion()
	if err != nil {
		t.Fatalf("Champion failed: %v", err)
	}
	if champion.Version != artifact.Version {
		t.Errorf("Champion version: got %s, want %s", champion.Version, artifact.Version)
	}

	// Registration plus promotion emits exactly one audit event.
	events, err := store.AuditTrail(0)
	if err != nil {
		t.Fatalf("AuditTrail failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 audit event, got %d", len(events))
	}
	if events[0].Action != "promote" {
		t.Errorf("Audit action: got %s, want promote", events[0].Action)
	}
}

func TestGet_NotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get("v00000000-000000.000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestGet_DetectsCorruption(t *testing.T) {
	store := newTestStore(t)
	artifact := testArtifact(store, time.Now())
	if err := store.Register(artifact, false); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Tamper with the stored payload directly, keeping the old checksum.
	err := store.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(modelsBucket))
		var a Artifact
		if err := json.Unmarshal(b.Get([]byte(artifact.Version)), &a); err != nil {
			return err
		}
		a.Payload = []byte(`{"weights":[9.9],"bias":9.9}`)
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return b.Put([]byte(artifact.Version), data)
	})
	if err != nil {
		t.Fatalf("Tamper failed: %v", err)
	}

	if _, err := store.Get(artifact.Version); !errors.Is(err, ErrIntegrity) {
		t.Errorf("Expected ErrIntegrity, got: %v", err)
	}
}

func TestList_OrderedByVersion(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		artifact := testArtifact(store, now.Add(time.Duration(i)*time.Second))
		if err := store.Register(artifact, false); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	artifacts, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("Expected 3 artifacts, got %d", len(artifacts))
	}
	for i := 1; i < len(artifacts); i++ {
		if artifacts[i-1].Version >= artifacts[i].Version {
			t.Errorf("Artifacts out of order: %s before %s", artifacts[i-1].Version, artifacts[i].Version)
		}
	}
}

func TestRollback(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	first := testArtifact(store, now)
	second := testArtifact(store, now.Add(time.Second))
	if err := store.Register(first, true); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := store.Register(second, true); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := store.Rollback(first.Version, now.Add(2*time.Second)); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	version, err := store.ChampionVersion()
	if err != nil {
		t.Fatalf("ChampionVersion failed: %v", err)
	}
	if version != first.Version {
		t.Errorf("Champion after rollback: got %s, want %s", version, first.Version)
	}

	events, err := store.AuditTrail(1)
	if err != nil {
		t.Fatalf("AuditTrail failed: %v", err)
	}
	if len(events) != 1 || events[0].Action != "rollback" {
		t.Errorf("Expected most recent audit event to be rollback, got %+v", events)
	}
}

func TestRollback_UnknownVersion(t *testing.T) {
	store := newTestStore(t)
	if err := store.Rollback("v99999999-000000.000", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestAuditTrail_NewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		event := AuditEvent{Ts: base.Add(time.Duration(i) * time.Minute), Action: "register", Detail: "n"}
		if err := store.AppendAudit(event); err != nil {
			t.Fatalf("AppendAudit failed: %v", err)
		}
	}

	events, err := store.AuditTrail(3)
	if err != nil {
		t.Fatalf("AuditTrail failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i-1].Ts.Before(events[i].Ts) {
			t.Errorf("Events not newest-first: %v before %v", events[i-1].Ts, events[i].Ts)
		}
	}
}

func TestRetrainHistory(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	outcomes := []string{"promoted", "rejected", "failed"}
	for i, outcome := range outcomes {
		record := RetrainRecord{
			Ts:         base.Add(time.Duration(i) * time.Minute),
			Trigger:    "drift_score",
			Outcome:    outcome,
			DriftScore: 75.0,
		}
		if err := store.AppendRetrain(record); err != nil {
			t.Fatalf("AppendRetrain failed: %v", err)
		}
	}

	records, err := store.RetrainHistory(0)
	if err != nil {
		t.Fatalf("RetrainHistory failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].Outcome != "failed" {
		t.Errorf("Expected newest record first, got outcome %s", records[0].Outcome)
	}

	limited, err := store.RetrainHistory(2)
	if err != nil {
		t.Fatalf("RetrainHistory failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 records with limit, got %d", len(limited))
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	tempDir := t.TempDir()

	store, err := Open(tempDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	artifact := testArtifact(store, time.Now())
	if err := store.Register(artifact, true); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	store.Close()

	reopened, err := Open(tempDir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	champion, err := reopened.Champion()
	if err != nil {
		t.Fatalf("Champion after reopen failed: %v", err)
	}
	if champion.Version != artifact.Version {
		t.Errorf("Champion after reopen: got %s, want %s", champion.Version, artifact.Version)
	}
}
