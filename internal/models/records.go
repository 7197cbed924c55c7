package models

import "time"

// ChecksumRecord is the stored digest for one student.
type ChecksumRecord struct {
	ExternalKey string    `json:"external_key" gorm:"column:external_key;primaryKey;type:varchar(255)"`
	Digest      string    `json:"digest" gorm:"column:digest;type:char(64);not null"`
	DateAdded   time.Time `json:"date_added" gorm:"column:date_added;not null"`
	DateUpdated time.Time `json:"date_updated" gorm:"column:date_updated;not null"`
	// LastSeen is refreshed whenever the student appears in a data file,
	// changed or not. Retention runs on it.
	LastSeen time.Time `json:"last_seen" gorm:"column:last_seen;not null;index"`
}

func (ChecksumRecord) TableName() string { return "patron_checksums" }

// RunRecord is one ingest run over one data file.
type RunRecord struct {
	ID           string     `json:"id" gorm:"column:id;primaryKey;type:varchar(36)"`
	ClientID     string     `json:"client_id" gorm:"column:client_id;index:idx_runs_client_started,priority:1;not null"`
	Namespace    string     `json:"namespace" gorm:"column:namespace;not null"`
	FileName     string     `json:"file_name" gorm:"column:file_name;not null"`
	FileChecksum string     `json:"file_checksum" gorm:"column:file_checksum"`
	StartedAt    time.Time  `json:"started_at" gorm:"column:started_at;index:idx_runs_client_started,priority:2;not null"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" gorm:"column:finished_at"`
	Status       string     `json:"status" gorm:"column:status;not null"`
	Total        int        `json:"total" gorm:"column:total"`
	Unchanged    int        `json:"unchanged" gorm:"column:unchanged"`
	Created      int        `json:"created" gorm:"column:created"`
	Updated      int        `json:"updated" gorm:"column:updated"`
	Ambiguous    int        `json:"ambiguous" gorm:"column:ambiguous"`
	Invalid      int        `json:"invalid" gorm:"column:invalid"`
	Failed       int        `json:"failed" gorm:"column:failed"`
	Errors       []string   `json:"errors,omitempty" gorm:"column:errors;type:text;serializer:json"`
}

func (RunRecord) TableName() string { return "ingest_runs" }
