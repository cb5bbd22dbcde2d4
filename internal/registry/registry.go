// Package registry provides persistent model versioning for the drift
// monitoring pipeline. It uses BoltDB as the underlying storage engine to
// store model artifacts, the champion pointer, the audit trail, and the
// retraining history.
//
// Every artifact carries a SHA-256 checksum computed over its serialized
// parameters; the checksum is re-verified on every read so a corrupted
// champion can never be served silently.
package registry

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const (
	modelsBucket  = "models"          // Bucket name for model artifacts, keyed by version
	auditBucket   = "audit"           // Bucket name for append-only audit events
	retrainBucket = "retrain_history" // Bucket name for retraining attempt records
	stateBucket   = "state"           // Bucket name for the champion pointer

	championKey = "champion"
)

var (
	// ErrNotFound is returned when a requested version does not exist or no
	// champion has been promoted yet.
	ErrNotFound = errors.New("model not found")
	// ErrIntegrity is returned when a stored artifact fails checksum
	// re-verification on read.
	ErrIntegrity = errors.New("artifact checksum mismatch")
)

// Artifact is a versioned, checksummed model snapshot.
type Artifact struct {
	Version         string             `json:"version"`
	CreatedAt       time.Time          `json:"created_at"`
	Checksum        string             `json:"checksum"`
	Payload         []byte             `json:"payload"`
	Accuracy        float64            `json:"accuracy"`
	TrainSamples    int                `json:"train_samples"`
	DriftScore      float64            `json:"drift_score"`
	FeatureNames    []string           `json:"feature_names,omitempty"`
	Hyperparameters map[string]float64 `json:"hyperparameters,omitempty"`
	Reason          string             `json:"reason,omitempty"`
}

// AuditEvent records one registry mutation: a registration, promotion,
// rollback, or retraining outcome.
type AuditEvent struct {
	Ts      time.Time `json:"ts"`
	Action  string    `json:"action"`
	Version string    `json:"version,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// RetrainRecord captures the outcome of one retraining attempt, successful
// or not.
type RetrainRecord struct {
	Ts                time.Time `json:"ts"`
	Trigger           string    `json:"trigger"`
	Reason            string    `json:"reason,omitempty"`
	Outcome           string    `json:"outcome"`
	CandidateVersion  string    `json:"candidate_version,omitempty"`
	CandidateAccuracy float64   `json:"candidate_accuracy"`
	ChampionAccuracy  float64   `json:"champion_accuracy"`
	DriftScore        float64   `json:"drift_score"`
	Duration          float64   `json:"duration_seconds"`
	Detail            string    `json:"detail,omitempty"`
}

// Store provides persistent model registry storage using BoltDB.
type Store struct {
	db *bbolt.DB

	mu        sync.Mutex
	lastStamp string
	lastSeq   int
}

// Open creates a registry store at the specified data path, initializing the
// BoltDB database and its buckets.
func Open(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "driftwatch-registry.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{modelsBucket, auditBucket, retrainBucket, stateBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Checksum computes the hex SHA-256 digest of a serialized model payload.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// NextVersion produces a monotonic version string derived from the current
// time. Registrations within the same second get an increasing sequence
// suffix so versions stay unique and sort in creation order.
func (s *Store) NextVersion(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := now.UTC().Format("20060102-150405")
	if stamp == s.lastStamp {
		s.lastSeq++
	} else {
		s.lastStamp = stamp
		s.lastSeq = 0
	}
	return fmt.Sprintf("v%s.%03d", stamp, s.lastSeq)
}

// Register stores an artifact and optionally promotes it to champion. The
// artifact write, the champion swap, and the audit event all happen in a
// single transaction, so a reader never observes a registered model without
// its audit entry or a half-finished promotion.
func (s *Store) Register(artifact Artifact, promote bool) error {
	if artifact.Version == "" {
		return fmt.Errorf("artifact has no version")
	}
	if artifact.Checksum != Checksum(artifact.Payload) {
		return fmt.Errorf("%w: version %s", ErrIntegrity, artifact.Version)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(artifact)
		if err != nil {
			return fmt.Errorf("marshal artifact: %w", err)
		}
		if err := tx.Bucket([]byte(modelsBucket)).Put([]byte(artifact.Version), data); err != nil {
			return fmt.Errorf("store artifact: %w", err)
		}

		action := "register"
		if promote {
			action = "promote"
			if err := tx.Bucket([]byte(stateBucket)).Put([]byte(championKey), []byte(artifact.Version)); err != nil {
				return fmt.Errorf("set champion: %w", err)
			}
		}
		return s.appendAudit(tx, AuditEvent{
			Ts:      artifact.CreatedAt,
			Action:  action,
			Version: artifact.Version,
			Detail:  artifact.Reason,
		})
	})
}

// Get retrieves an artifact by version, re-verifying its checksum.
func (s *Store) Get(version string) (Artifact, error) {
	var artifact Artifact
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(modelsBucket)).Get([]byte(version))
		if data == nil {
			return fmt.Errorf("%w: version %s", ErrNotFound, version)
		}
		if err := json.Unmarshal(data, &artifact); err != nil {
			return fmt.Errorf("unmarshal artifact: %w", err)
		}
		return nil
	})
	if err != nil {
		return Artifact{}, err
	}
	if artifact.Checksum != Checksum(artifact.Payload) {
		return Artifact{}, fmt.Errorf("%w: version %s", ErrIntegrity, version)
	}
	return artifact, nil
}

// Champion returns the currently promoted artifact, or ErrNotFound when no
// model has been promoted yet.
func (s *Store) Champion() (Artifact, error) {
	version, err := s.ChampionVersion()
	if err != nil {
		return Artifact{}, err
	}
	return s.Get(version)
}

// ChampionVersion returns just the champion pointer without loading the
// artifact payload.
func (s *Store) ChampionVersion() (string, error) {
	var version string
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(stateBucket)).Get([]byte(championKey))
		if v == nil {
			return fmt.Errorf("%w: no champion promoted", ErrNotFound)
		}
		version = string(v)
		return nil
	})
	return version, err
}

// List returns all stored artifacts ordered by version (which sorts by
// creation order), payloads included.
func (s *Store) List() ([]Artifact, error) {
	var artifacts []Artifact
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).ForEach(func(_, v []byte) error {
			var a Artifact
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("unmarshal artifact: %w", err)
			}
			artifacts = append(artifacts, a)
			return nil
		})
	})
	return artifacts, err
}

// Rollback promotes a previously registered version back to champion. The
// artifact is checksum-verified before the pointer moves.
func (s *Store) Rollback(version string, now time.Time) error {
	if _, err := s.Get(version); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(stateBucket)).Put([]byte(championKey), []byte(version)); err != nil {
			return fmt.Errorf("set champion: %w", err)
		}
		return s.appendAudit(tx, AuditEvent{Ts: now, Action: "rollback", Version: version})
	})
}

// AppendAudit records a standalone audit event outside of a registration.
func (s *Store) AppendAudit(event AuditEvent) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return s.appendAudit(tx, event)
	})
}

func (s *Store) appendAudit(tx *bbolt.Tx, event AuditEvent) error {
	b := tx.Bucket([]byte(auditBucket))
	seq, err := b.NextSequence()
	if err != nil {
		return fmt.Errorf("audit sequence: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return b.Put(seqKey(seq), data)
}

// AuditTrail returns the most recent audit events, newest first. A limit of
// zero or less returns everything.
func (s *Store) AuditTrail(limit int) ([]AuditEvent, error) {
	var events []AuditEvent
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(auditBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(events) >= limit {
				break
			}
			var e AuditEvent
			if err := json.Unmarshal(v, &e); err != nil {
				continue // Skip malformed records
			}
			events = append(events, e)
		}
		return nil
	})
	return events, err
}

// AppendRetrain records one retraining attempt in the history bucket.
func (s *Store) AppendRetrain(record RetrainRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(retrainBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("retrain sequence: %w", err)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal retrain record: %w", err)
		}
		return b.Put(seqKey(seq), data)
	})
}

// RetrainHistory returns the most recent retraining records, newest first.
// A limit of zero or less returns everything.
func (s *Store) RetrainHistory(limit int) ([]RetrainRecord, error) {
	var records []RetrainRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(retrainBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var r RetrainRecord
			if err := json.Unmarshal(v, &r); err != nil {
				continue // Skip malformed records
			}
			records = append(records, r)
		}
		return nil
	})
	return records, err
}

// seqKey encodes a bucket sequence number as a big-endian key so cursor
// order matches insertion order.
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
