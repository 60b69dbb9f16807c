package breaker

import (
	"time"

	"github.com/uptrace/bun"
)

// StateDao is a data access object that maps directly to the 'breaker_state'
// table in PostgreSQL. The table holds exactly one row.
type StateDao struct {
	bun.BaseModel `bun:"table:breaker_state,alias:bs"`
	ID            int64      `bun:"id,pk"`
	Open          bool       `bun:"open,notnull,default:false"`
	Reason        *string    `bun:"reason,type:varchar(500)"`
	OpenedAt      *time.Time `bun:"opened_at"`
	ClosedAt      *time.Time `bun:"closed_at"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,default:current_timestamp"`
}

// singletonID is the fixed primary key of the one breaker_state row.
const singletonID = int64(1)

func toStateDao(s *State) *StateDao {
	dao := &StateDao{
		ID:       singletonID,
		Open:     s.Open,
		OpenedAt: s.OpenedAt,
		ClosedAt: s.ClosedAt,
	}
	if s.Reason != "" {
		reason := s.Reason
		dao.Reason = &reason
	}
	return dao
}

func toState(dao *StateDao) *State {
	s := &State{
		Open:     dao.Open,
		OpenedAt: dao.OpenedAt,
		ClosedAt: dao.ClosedAt,
	}
	if dao.Reason != nil {
		s.Reason = *dao.Reason
	}
	return s
}
