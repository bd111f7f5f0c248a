package model

import "time"

// BackupEntry describes one backup of the progress file
type BackupEntry struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Reason    string    `json:"reason"` // pre_save, pre_restore, manual, auto
	CreatedAt time.Time `json:"created_at"`
	Modified  time.Time `json:"modified"` // Retention order
	Size      int64     `json:"size"`
}

// ProgressStats is an observational summary of the progress file
type ProgressStats struct {
	Exists      bool      `json:"exists"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified,omitempty"`
	RecordCount int       `json:"record_count"`
	Completed   int       `json:"completed"` // Records with a non-unset status
	BackupCount int       `json:"backup_count"`
}
