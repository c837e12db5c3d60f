package models

import "github.com/google/uuid"

// assignID gives a new row its UUID in Go so inserts behave the same on
// Postgres and SQLite.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Team{},
		&TeamMembership{},
		&Project{},
		&Asset{},
		&AssetVersion{},
		&AssetWatcher{},
		&Comment{},
		&CommentReaction{},
		&CommentAttachment{},
		&Annotation{},
		&ApprovalStep{},
		&ReviewInvite{},
		&ReviewView{},
		&ActivityLogEntry{},
		&Notification{},
		&NotificationPreference{},
		&NotificationCounter{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
