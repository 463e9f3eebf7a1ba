package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// identified is the shape every record exposes so one handler set serves all
// models.
type identified interface {
	recordID() string
	setRecordID(id string)
}

func (r *connectionRecord) recordID() string        { return r.ID }
func (r *connectionRecord) setRecordID(id string)   { r.ID = id }
func (r *crawlHistoryRecord) recordID() string      { return r.ID }
func (r *crawlHistoryRecord) setRecordID(id string) { r.ID = id }

func handlersFor[T any, PT interface {
	*T
	identified
}]() repository.ModelHandlers[PT] {
	return repository.ModelHandlers[PT]{
		NewRecord: func() PT {
			return PT(new(T))
		},
		GetID: func(record PT) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.recordID())
		},
		SetID: func(record PT, id uuid.UUID) {
			if record == nil {
				return
			}
			record.setRecordID(id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record PT) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.recordID())
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
