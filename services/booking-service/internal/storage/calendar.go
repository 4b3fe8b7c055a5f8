package storage

import "github.com/chairtime/chairtime/libs/db"

// Calendar combines the booking and schedule repositories into the one
// store the engine, conflict validator and availability resolver
// consume. Both halves share the pool, so a transaction on the context
// spans them.
type Calendar struct {
	*BookingRepository
	*ScheduleRepository
}

func NewCalendar(pool *db.Pool) *Calendar {
	return &Calendar{
		BookingRepository:  NewBookingRepository(pool),
		ScheduleRepository: NewScheduleRepository(pool),
	}
}
