package main

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/linuxdeepin/dde-cooperation/internal/logging"
)

const uuidFileName = "uuid"

// loadOrCreateUUID returns this install's stable device uuid, persisted
// under dataDir so restarts keep advertising the same identity instead of
// looking like a new device on every beacon.
func loadOrCreateUUID(dataDir string, log logging.Logger) string {
	path := filepath.Join(dataDir, uuidFileName)
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		return string(b)
	}

	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		log.Errorf("generating uuid: %v", err)
		return "unidentified-device"
	}
	id := hex.EncodeToString(raw[:])

	if err := os.WriteFile(path, []byte(id), 0o644); err != nil {
		log.Errorf("persisting uuid: %v", err)
	}
	return id
}
