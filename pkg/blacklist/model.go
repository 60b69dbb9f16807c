package blacklist

import (
	"time"

	"github.com/uptrace/bun"
)

// EntryDao is a data access object that maps directly to the
// 'blacklist_entries' table in PostgreSQL.
type EntryDao struct {
	bun.BaseModel `bun:"table:blacklist_entries,alias:bl"`
	ID            string     `bun:"id,pk,type:uuid"`
	EntryType     string     `bun:"entry_type,notnull,type:varchar(16)"`
	Value         string     `bun:"value,notnull,type:varchar(255)"`
	Reason        string     `bun:"reason,notnull,type:varchar(500)"`
	Active        bool       `bun:"active,notnull,default:true"`
	AddedAt       time.Time  `bun:"added_at,nullzero,default:current_timestamp"`
	RemovedAt     *time.Time `bun:"removed_at"`
}

func toEntry(dao *EntryDao) *Entry {
	return &Entry{
		ID:        dao.ID,
		Type:      EntryType(dao.EntryType),
		Value:     dao.Value,
		Reason:    dao.Reason,
		Active:    dao.Active,
		AddedAt:   dao.AddedAt,
		RemovedAt: dao.RemovedAt,
	}
}
