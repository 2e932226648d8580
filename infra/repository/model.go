package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the accounts row.
type Account struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Balance   int64     `gorm:"not null"`
	Currency  string    `gorm:"type:varchar(3);not null"`
	Active    bool      `gorm:"not null"`
	Version   int64     `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Account) TableName() string { return "accounts" }

// Transaction is the transactions row.
type Transaction struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null"`
	AccountID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Amount       int64      `gorm:"not null"`
	Currency     string     `gorm:"type:varchar(3);not null"`
	Kind         string     `gorm:"type:varchar(16);not null"`
	Status       string     `gorm:"type:varchar(16);not null"`
	SourceRuleID *uuid.UUID `gorm:"type:uuid"`
	EventID      *uuid.UUID `gorm:"type:uuid"`
	Description  string     `gorm:"type:text;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Transaction) TableName() string { return "transactions" }

// AccountRule is the account_rules row.
type AccountRule struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID               uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name                 string          `gorm:"type:varchar(128);not null"`
	SourceAccountID      uuid.UUID       `gorm:"type:uuid;not null"`
	DestinationAccountID uuid.UUID       `gorm:"type:uuid;not null"`
	Computation          string          `gorm:"type:varchar(16);not null"`
	Value                decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	TriggerType          string          `gorm:"type:varchar(16);not null"`
	Frequency            string          `gorm:"type:varchar(16);not null"`
	MinAmount            *int64
	MaxAmount            *int64
	IsActive             bool `gorm:"not null"`
	LastTriggeredAt      *time.Time
	ScheduleAnchor       *time.Time
	LastScheduledAt      *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (AccountRule) TableName() string { return "account_rules" }

// ExecutionRecord is the rule_execution_records row. (RuleID, EventID) is unique.
type ExecutionRecord struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RuleID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_rule_execution_records_rule_event"`
	EventID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_rule_execution_records_rule_event"`
	Outcome       string     `gorm:"type:varchar(32);not null"`
	TransactionID *uuid.UUID `gorm:"type:uuid"`
	Amount        int64      `gorm:"not null"`
	TriggerAmount int64      `gorm:"not null"`
	DueAt         *time.Time
	Reason        string `gorm:"type:text;not null"`
	ReservedAt    time.Time
	CompletedAt   *time.Time
}

func (ExecutionRecord) TableName() string { return "rule_execution_records" }

// OutboxMessage is the outbox_messages row.
type OutboxMessage struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventType   string    `gorm:"type:varchar(64);not null"`
	AggregateID uuid.UUID `gorm:"type:uuid;not null"`
	Payload     []byte    `gorm:"type:jsonb;not null"`
	Status      string    `gorm:"type:varchar(16);not null"`
	Attempts    int       `gorm:"not null"`
	LastError   string    `gorm:"type:text;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

func (OutboxMessage) TableName() string { return "outbox_messages" }
