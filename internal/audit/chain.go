package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/migration-estimator-api/internal/models"
)

const hashPrefix = "sha256:"

type canonicalEntry struct {
	ID        string             `json:"id"`
	ActorID   string             `json:"actorId"`
	Timestamp string             `json:"timestamp"`
	Entity    string             `json:"entity"`
	EntityID  string             `json:"entityId"`
	Action    models.AuditAction `json:"action"`
	Diff      models.AuditDiff   `json:"diff"`
	Reason    *string            `json:"reason"`
	PrevHash  string             `json:"prevHash"`
}

// Hash computes the chained digest of an entry. Hash and transport metadata are excluded.
func Hash(entry models.AuditLogEntry) (string, error) {
	diff := entry.Diff
	if diff == nil {
		diff = models.AuditDiff{}
	}
	b, err := json.Marshal(canonicalEntry{
		ID:        entry.ID,
		ActorID:   entry.ActorID,
		Timestamp: entry.Timestamp.UTC().Format(time.RFC3339Nano),
		Entity:    entry.Entity,
		EntityID:  entry.EntityID,
		Action:    entry.Action,
		Diff:      diff,
		Reason:    entry.Reason,
		PrevHash:  entry.PrevHash,
	})
	if err != nil {
		return "", fmt.Errorf("hash audit entry: %w", err)
	}
	sum := sha256.Sum256(b)
	return hashPrefix + hex.EncodeToString(sum[:]), nil
}

// Seal links entry to prevHash and fills its Hash.
func Seal(entry *models.AuditLogEntry, prevHash string) error {
	entry.PrevHash = prevHash
	hash, err := Hash(*entry)
	if err != nil {
		return err
	}
	entry.Hash = hash
	return nil
}

// Verify walks one entity's entries in chain order and reports the first broken link.
func Verify(entries []models.AuditLogEntry) (bool, string) {
	prev := ""
	for _, entry := range entries {
		if entry.PrevHash != prev {
			return false, entry.ID
		}
		hash, err := Hash(entry)
		if err != nil || hash != entry.Hash {
			return false, entry.ID
		}
		prev = entry.Hash
	}
	return true, ""
}
