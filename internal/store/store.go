package store

import "time"

// Store is the persistent store of spec.md §4.A. It is implemented by
// SQLiteStore; the interface exists so components depend on behavior, not
// on database/sql, mirroring the teacher's own Store interface.
type Store interface {
	Init() error
	Close() error

	// Instances (§3 "Instance", §4.A)
	UpsertInstance(i Instance) error
	GetInstance(instanceID string) (Instance, error)
	ListInstances() ([]Instance, error)
	DeleteInstance(instanceID string) error
	SetInstanceStatus(instanceID string, status InstanceStatus, lastError string) error
	TouchInstance(instanceID string, at time.Time) error

	// Listeners (§3 "Listener", §4.D)
	UpsertListener(l Listener) error
	GetListener(instanceID, chatName string) (Listener, error)
	ListListeners(instanceID string) ([]Listener, error)
	ListAllListeners() ([]Listener, error)
	CountListeners(instanceID string) (int, error)
	DeleteListener(instanceID, chatName string) error
	TouchListener(instanceID, chatName string, at time.Time) error
	MarkListenerForRemoval(instanceID, chatName string) error

	// Messages (§3 "Message", §4.E)
	InsertMessage(m Message) error
	FindRecentByHash(instanceID, chatName, sender, hash string, since time.Time) (bool, error)
	GetMessage(messageID string) (Message, error)
	ListPending(limit int, now time.Time) ([]Message, error)
	MarkDelivering(messageID string, at time.Time) error
	MarkDelivered(messageID, reply string) error
	MarkFailed(messageID, errMsg string, retryable bool) error
	SkipMessage(messageID, reason string) error
	ReclaimStaleDelivering(olderThan time.Time) (int, error)
	PendingCounts() (PendingCounts, error)
	ListMessages(instanceID, chatName string, since time.Time, limit int) ([]Message, error)

	// Platforms (§3 "Platform", §4.G)
	UpsertPlatform(p Platform) error
	GetPlatform(platformID string) (Platform, error)
	ListPlatforms() ([]Platform, error)
	DeletePlatform(platformID string) error

	// Rules (§3 "Rule", §4.F)
	UpsertRule(r Rule) error
	GetRule(ruleID string) (Rule, error)
	ListRules() ([]Rule, error)
	ListEnabledRules() ([]Rule, error)
	DeleteRule(ruleID string) error

	// Delivery ledger (§4.A)
	InsertDeliveryAttempt(a DeliveryAttempt) error
	ListDeliveryAttempts(messageID string) ([]DeliveryAttempt, error)

	// Config registry backing store (§4.B)
	SetConfig(key, value string, encrypted bool) error
	GetConfig(key string) (ConfigEntry, error)
	ListConfig() ([]ConfigEntry, error)
}
