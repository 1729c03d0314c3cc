// Package subscription owns the user-curated mapping from human-friendly
// entity names to platform identifiers — the storage half of the Entity
// Resolver. Subscriptions are persisted via gorm, the same ORM the
// teacher's internal/database pool wraps elsewhere in this codebase.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// StringMap is a map[string]string gorm column stored as JSON text. Gorm
// has no built-in map column type for the sqlite/mysql/postgres trio
// this project supports without pulling in gorm.io/datatypes, so it
// implements sql.Scanner/driver.Valuer directly — the standard gorm
// idiom for ad-hoc JSON columns.
type StringMap map[string]string

func (m StringMap) Value() (interface{}, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = StringMap{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type %T for StringMap", value)
	}
	if len(raw) == 0 {
		*m = StringMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// StringSlice is a []string gorm column stored as JSON text, used for
// Aliases and SupportedActions.
type StringSlice []string

func (s StringSlice) Value() (interface{}, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	return string(b), err
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = StringSlice{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type %T for StringSlice", value)
	}
	if len(raw) == 0 {
		*s = StringSlice{}
		return nil
	}
	return json.Unmarshal(raw, s)
}

// Contains reports whether name matches s or any of its aliases,
// case-insensitively.
func (s StringSlice) Contains(name string) bool {
	name = strings.ToLower(name)
	for _, v := range s {
		if strings.ToLower(v) == name {
			return true
		}
	}
	return false
}

// Subscription is a user-curated mapping from a display name (plus
// aliases) to one or more platform identifiers.
type Subscription struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	UserScope        string      `gorm:"index;size:128" json:"user_scope"`
	DisplayName      string      `gorm:"size:256;not null" json:"display_name"`
	Aliases          StringSlice `gorm:"type:text" json:"aliases"`
	Platform         string      `gorm:"index;size:64;not null" json:"platform"`
	EntityType       string      `gorm:"index;size:64;not null" json:"entity_type"`
	Identifiers      StringMap   `gorm:"type:text" json:"identifiers"`
	SupportedActions StringSlice `gorm:"type:text" json:"supported_actions"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// TableName pins the table name so a future rename of the Go type
// doesn't silently migrate data into a new table.
func (Subscription) TableName() string { return "omnibox_subscriptions" }

// EmbeddingText renders the text embedded for semantic subscription
// search: display name, aliases, and platform/entity-type so a fuzzy
// query over a nickname still matches.
func (s Subscription) EmbeddingText() string {
	text := s.DisplayName
	if len(s.Aliases) > 0 {
		text += " (" + strings.Join(s.Aliases, ", ") + ")"
	}
	text += " — " + s.Platform + " " + s.EntityType
	return text
}

// WriteOp identifies which mutation triggered an OnWrite notification, so
// a hook can tell an upsert-into-the-index case from a remove-from-the-index
// case without re-querying the store.
type WriteOp string

const (
	WriteOpCreate WriteOp = "create"
	WriteOpUpdate WriteOp = "update"
	WriteOpDelete WriteOp = "delete"
)

// Store is the CRUD + lookup surface the Entity Resolver and the
// subscription API handlers use. Mutations schedule re-embedding and
// resolution-cache invalidation via the OnWrite hook rather than doing
// either inline, so a store can be used without a retriever or cache
// layer wired in (e.g. in tests).
type Store struct {
	db      *gorm.DB
	OnWrite func(ctx context.Context, op WriteOp, s Subscription)
}

// New wraps an already-migrated *gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate runs the auto-migration for the Subscription model. Exposed
// separately from New so cmd/omnibox's migrate subcommand can invoke it
// without constructing a full Store.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Subscription{})
}

func (s *Store) notify(ctx context.Context, op WriteOp, sub Subscription) {
	if s.OnWrite != nil {
		s.OnWrite(ctx, op, sub)
	}
}

// Create inserts a new subscription.
func (s *Store) Create(ctx context.Context, sub Subscription) (Subscription, error) {
	if err := s.db.WithContext(ctx).Create(&sub).Error; err != nil {
		return Subscription{}, fmt.Errorf("create subscription: %w", err)
	}
	s.notify(ctx, WriteOpCreate, sub)
	return sub, nil
}

// Update persists changes to an existing subscription, identified by ID.
func (s *Store) Update(ctx context.Context, sub Subscription) (Subscription, error) {
	if err := s.db.WithContext(ctx).Save(&sub).Error; err != nil {
		return Subscription{}, fmt.Errorf("update subscription: %w", err)
	}
	s.notify(ctx, WriteOpUpdate, sub)
	return sub, nil
}

// Delete removes a subscription by ID.
func (s *Store) Delete(ctx context.Context, id uint) error {
	var sub Subscription
	if err := s.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return fmt.Errorf("find subscription for delete: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&Subscription{}, id).Error; err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	s.notify(ctx, WriteOpDelete, sub)
	return nil
}

// Get fetches a subscription by ID.
func (s *Store) Get(ctx context.Context, id uint) (Subscription, error) {
	var sub Subscription
	err := s.db.WithContext(ctx).First(&sub, id).Error
	return sub, err
}

// List returns every subscription for a given platform (or all
// platforms if platform is empty), within the given user scope.
func (s *Store) List(ctx context.Context, userScope, platform string) ([]Subscription, error) {
	q := s.db.WithContext(ctx).Where("user_scope = ?", userScope)
	if platform != "" {
		q = q.Where("platform = ?", platform)
	}
	var subs []Subscription
	if err := q.Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// FindByNameOrAlias performs the Entity Resolver's exact-match lookup:
// filtered by (platform, entity_type) drawn from the tool schema, not
// guessed, matching on display name or any alias case-insensitively.
func (s *Store) FindByNameOrAlias(ctx context.Context, userScope, platform, entityType, name string) (Subscription, bool, error) {
	var subs []Subscription
	err := s.db.WithContext(ctx).
		Where("user_scope = ? AND platform = ? AND entity_type = ?", userScope, platform, entityType).
		Find(&subs).Error
	if err != nil {
		return Subscription{}, false, fmt.Errorf("lookup subscription: %w", err)
	}

	lowered := strings.ToLower(name)
	for _, sub := range subs {
		if strings.ToLower(sub.DisplayName) == lowered || sub.Aliases.Contains(name) {
			return sub, true, nil
		}
	}
	return Subscription{}, false, nil
}

// AllForEmbedding returns every subscription in scope, used to (re)build
// the semantic subscription index from scratch.
func (s *Store) AllForEmbedding(ctx context.Context, userScope string) ([]Subscription, error) {
	var subs []Subscription
	if err := s.db.WithContext(ctx).Where("user_scope = ?", userScope).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions for embedding: %w", err)
	}
	return subs, nil
}
