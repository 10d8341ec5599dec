package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/climbs/internal/backup"
)

type backupRunner interface {
	Status() backup.Status
	RunNow(ctx context.Context) (string, error)
}

type BackupHandler struct {
	backups backupRunner
	logger  *slog.Logger
}

func NewBackupHandler(b backupRunner, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{backups: b, logger: logger}
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backups.Status())
}

// Run takes a snapshot now, outside the nightly schedule.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	key, err := h.backups.RunNow(r.Context())
	if err != nil {
		writeError(w, h.logger, "run backup", err)
		return
	}
	writeOK(w, map[string]any{"key": key})
}
