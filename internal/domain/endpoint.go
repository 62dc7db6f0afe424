package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Endpoint belongs to exactly one Job; deleting the Job cascades.
type Endpoint struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID  uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	Method string    `gorm:"column:method;not null" json:"method"`
	URL    string    `gorm:"column:url;type:text;not null" json:"url"`

	// DefaultHeaders is a map[string]string serialized as jsonb; decoded via
	// Headers() rather than read directly, matching the teacher's convention
	// of never unmarshaling datatypes.JSON columns at the call site.
	DefaultHeaders datatypes.JSON `gorm:"column:default_headers;type:jsonb" json:"default_headers,omitempty"`

	TimeoutMs     int  `gorm:"column:timeout_ms;not null;default:0" json:"timeout_ms"`
	FireAndForget bool `gorm:"column:fire_and_forget;not null;default:false" json:"fire_and_forget"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Endpoint) TableName() string { return "scheduler_endpoint" }

// Headers decodes DefaultHeaders, never returning nil.
func (e Endpoint) Headers() map[string]string {
	return decodeStringMap(e.DefaultHeaders)
}
