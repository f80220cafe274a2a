package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

func (e *Entry) HashFields() map[string]string {
	return map[string]string{
		"id":             e.ID,
		"entry_key":      e.EntryKey,
		"user_id":        e.UserID,
		"type":           string(e.Type),
		"status":         string(e.Status),
		"amount":         fmt.Sprintf("%d", e.Amount),
		"transaction_id": e.TransactionID,
		"reference_id":   e.ReferenceID,
		"created_at":     e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// GenerateHash is sha256 over the sorted k=v pairs of HashFields joined by "|".
func (e *Entry) GenerateHash() string {
	fields := e.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// GenerateTransactionID returns YYYYMMDD-XXXXXX.
func GenerateTransactionID() (string, error) {
	datePart := time.Now().UTC().Format("20060102")

	r := make([]byte, 3)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s", datePart, strings.ToUpper(hex.EncodeToString(r))), nil
}
