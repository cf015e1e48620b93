package store

import "time"

// InstanceStatus mirrors spec.md §3's Instance status enum.
type InstanceStatus string

const (
	StatusInitializing InstanceStatus = "INITIALIZING"
	StatusOnline       InstanceStatus = "ONLINE"
	StatusOffline      InstanceStatus = "OFFLINE"
	StatusError        InstanceStatus = "ERROR"
	StatusDisabled     InstanceStatus = "DISABLED"
)

// InstanceConfig holds the recognized per-instance options from spec.md §3.
type InstanceConfig struct {
	PollIntervalS         int  `json:"poll_interval_s"`
	MaxListeners          int  `json:"max_listeners"`
	ListenerIdleTimeoutS  int  `json:"listener_idle_timeout_s"`
	CleanupIntervalS      int  `json:"cleanup_interval_s"`
	HealthCheckIntervalS  int  `json:"health_check_interval_s"`
	AutoReconnect         bool `json:"auto_reconnect"`
	MaxRetry              int  `json:"max_retry"`
}

// DefaultInstanceConfig returns the defaults named in spec.md §3.
func DefaultInstanceConfig() InstanceConfig {
	return InstanceConfig{
		PollIntervalS:        5,
		MaxListeners:         30,
		ListenerIdleTimeoutS: 1800,
		CleanupIntervalS:     60,
		HealthCheckIntervalS: 60,
		AutoReconnect:        true,
		MaxRetry:             3,
	}
}

// Instance is the management-side record for one agent (spec.md §3 "Instance").
type Instance struct {
	InstanceID   string         `json:"instance_id"`
	Name         string         `json:"name"`
	BaseURL      string         `json:"base_url"`
	APIKey       string         `json:"-"`              // decrypted, never serialized directly
	APIKeyEnc    string         `json:"-"`               // ciphertext as stored
	APIKeyRedacted string       `json:"api_key"`          // "********" placeholder for the management API
	Enabled      bool           `json:"enabled"`
	Status       InstanceStatus `json:"status"`
	LastError    string         `json:"last_error,omitempty"`
	LastActiveTS time.Time      `json:"last_active_ts"`
	Config       InstanceConfig `json:"config"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Listener is the (instance, chat) pair actively polled for new messages
// (spec.md §3 "Listener").
type Listener struct {
	InstanceID          string    `json:"instance_id"`
	ChatName            string    `json:"chat_name"`
	AddedTS             time.Time `json:"added_ts"`
	LastMessageTS       time.Time `json:"last_message_ts"`
	MarkedForRemoval    bool      `json:"marked_for_removal"`
	Manual              bool      `json:"manual"`
	ConversationStarted bool      `json:"conversation_started"`
	Fixed               bool      `json:"fixed"`
	State               ListenerState `json:"state"`
}

// ListenerState is the per-listener state machine of spec.md §4.D.
type ListenerState string

const (
	ListenerInactive          ListenerState = "INACTIVE"
	ListenerActive            ListenerState = "ACTIVE"
	ListenerIdle              ListenerState = "IDLE"
	ListenerMarkedForRemoval  ListenerState = "MARKED_FOR_REMOVAL"
	ListenerRemoved           ListenerState = "REMOVED"
)

// MessageType enumerates spec.md §3's mtype values.
type MessageType string

const (
	MsgText   MessageType = "text"
	MsgImage  MessageType = "image"
	MsgFile   MessageType = "file"
	MsgVoice  MessageType = "voice"
	MsgVideo  MessageType = "video"
	MsgSystem MessageType = "system"
)

// DeliveryStatus enumerates spec.md §3's delivery_status values.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "PENDING"
	DeliveryDelivering DeliveryStatus = "DELIVERING"
	DeliveryDelivered  DeliveryStatus = "DELIVERED"
	DeliveryFailed     DeliveryStatus = "FAILED"
	DeliverySkipped    DeliveryStatus = "SKIPPED"
)

// Message is a single ingested chat message (spec.md §3 "Message").
type Message struct {
	MessageID        string         `json:"message_id"`
	InstanceID       string         `json:"instance_id"`
	ChatName         string         `json:"chat_name"`
	Sender           string         `json:"sender"`
	SenderRemark     string         `json:"sender_remark,omitempty"`
	Content          string         `json:"content"`
	MType            MessageType    `json:"mtype"`
	ContentHash      string         `json:"content_hash"`
	LocalFilePath    string         `json:"local_file_path,omitempty"`
	ReceivedTS       time.Time      `json:"received_ts"`
	DeliveryStatus   DeliveryStatus `json:"delivery_status"`
	DeliveryAttempts int            `json:"delivery_attempts"`
	ReplyContent     string         `json:"reply_content,omitempty"`
	ReplyStatus      string         `json:"reply_status,omitempty"`
	DeliveringSince  *time.Time     `json:"delivering_since,omitempty"`
}

// PlatformKind enumerates spec.md §3's platform kinds.
type PlatformKind string

const (
	PlatformDify    PlatformKind = "dify"
	PlatformOpenAI  PlatformKind = "openai"
	PlatformKeyword PlatformKind = "keyword"
)

// Platform is a target AI/LLM or keyword responder (spec.md §3 "Platform").
type Platform struct {
	PlatformID string         `json:"platform_id"`
	Name       string         `json:"name"`
	Kind       PlatformKind   `json:"kind"`
	ConfigEnc  string         `json:"-"`
	Config     map[string]any `json:"config"`
	Enabled    bool           `json:"enabled"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Rule binds an instance scope and chat pattern to a platform
// (spec.md §3 "Rule").
type Rule struct {
	RuleID         string    `json:"rule_id"`
	Name           string    `json:"name"`
	InstanceID     string    `json:"instance_id"` // "*" or a specific instance_id
	ChatPattern    string    `json:"chat_pattern"`
	PlatformID     string    `json:"platform_id"`
	Priority       int       `json:"priority"`
	Enabled        bool      `json:"enabled"`
	OnlyAtMessages bool      `json:"only_at_messages"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DeliveryAttempt is one row of the delivery ledger named in spec.md §4.A.
type DeliveryAttempt struct {
	ID         int64     `json:"id"`
	MessageID  string    `json:"message_id"`
	PlatformID string    `json:"platform_id,omitempty"`
	RuleID     string    `json:"rule_id,omitempty"`
	Attempt    int       `json:"attempt"`
	Outcome    string    `json:"outcome"` // delivered | failed | skipped
	Error      string    `json:"error,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// ConfigEntry is a single key in the config registry (spec.md §4.B).
type ConfigEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Encrypted bool      `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PendingCounts summarizes message backlog, used by §5's backpressure check
// and the §C.6 /api/system/resources endpoint.
type PendingCounts struct {
	Pending    int `json:"pending"`
	Delivering int `json:"delivering"`
	Delivered  int `json:"delivered"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}
