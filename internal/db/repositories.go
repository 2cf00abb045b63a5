package db

import "gorm.io/gorm"

type Repositories struct {
	Events       *EventRepository
	Buckets      *WindowBucketRepository
	Correlations *CorrelationRepository
	Triggers     *TriggerRepository
	Ledger       *LedgerRepository
}

func NewRepositories(database *gorm.DB) *Repositories {
	return &Repositories{
		Events:       NewEventRepository(database),
		Buckets:      NewWindowBucketRepository(database),
		Correlations: NewCorrelationRepository(database),
		Triggers:     NewTriggerRepository(database),
		Ledger:       NewLedgerRepository(database),
	}
}
