// Package domain holds the core types exchanged between the registry, the
// lifecycle engine, the HTTP server and the SDK.
package domain

import "time"

// Request lifecycle statuses.
const (
	RequestPending     = "pending"
	RequestReserved    = "reserved"
	RequestResolved    = "resolved"
	RequestRetracted   = "retracted"
	RequestUnsolicited = "unsolicited"
)

// Result lifecycle statuses.
const (
	ResultOriginal = "original"
	ResultDeleted  = "deleted"
	ResultAmended  = "amended"
)

// Capability is a versioned declaration that a (quantity, method) pair can be
// served. Specifications constrain request parameters; ResultOutput constrains
// posted result data. At most one active row may exist per pair.
type Capability struct {
	UUID           string         `json:"uuid" format:"uuid"`
	Quantity       string         `json:"quantity"`
	Method         string         `json:"method"`
	Specifications map[string]any `json:"specifications"`
	ResultOutput   map[string]any `json:"result_output"`
	IsActive       bool           `json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Limitation scopes a capability to the subset a tenant actually offers.
// Limitations is a JSON fragment validated against the capability's derived
// limitations schema.
type Limitation struct {
	Quantity    string `json:"quantity"`
	Method      string `json:"method"`
	Limitations any    `json:"limitations"`
}

// Tenant is a registered producer or consumer of requests and results.
type Tenant struct {
	UUID          string       `json:"uuid" format:"uuid"`
	Name          string       `json:"name"`
	ContactPerson string       `json:"contact_person,omitempty"`
	Limitations   []Limitation `json:"limitations"`
	IsActive      bool         `json:"is_active"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Request asks for a quantity to be produced by any of Methods. Parameters is
// keyed by method name; its key set always mirrors Methods.
type Request struct {
	UUID       string                    `json:"uuid" format:"uuid"`
	Quantity   string                    `json:"quantity"`
	Methods    []string                  `json:"methods"`
	Parameters map[string]map[string]any `json:"parameters"`
	TenantUUID string                    `json:"tenant_uuid" format:"uuid"`
	Status     string                    `json:"status" enum:"pending,reserved,resolved,retracted,unsolicited"`
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// Result is the outcome posted for a request. Exactly one method per result.
type Result struct {
	UUID        string                    `json:"uuid" format:"uuid"`
	RequestUUID string                    `json:"request_uuid" format:"uuid"`
	Quantity    string                    `json:"quantity"`
	Method      string                    `json:"method"`
	Parameters  map[string]map[string]any `json:"parameters"`
	Data        map[string]any            `json:"data"`
	TenantUUID  string                    `json:"tenant_uuid" format:"uuid"`
	Status      string                    `json:"status" enum:"original,deleted,amended"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// StatusLogEntry is one append-only row in a request's or result's history.
type StatusLogEntry struct {
	UUID        string    `json:"uuid" format:"uuid"`
	SubjectUUID string    `json:"subject_uuid" format:"uuid"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// QuantityLink ties a request or result row to the capability it was
// validated against at submission time.
type QuantityLink struct {
	UUID           string    `json:"uuid" format:"uuid"`
	CapabilityUUID string    `json:"capability_uuid" format:"uuid"`
	SubjectUUID    string    `json:"subject_uuid" format:"uuid"`
	CreatedAt      time.Time `json:"created_at"`
}

// APIKey authenticates a tenant on the HTTP API. Only the SHA-256 hash of the
// secret is stored.
type APIKey struct {
	ID         int64     `json:"id"`
	TenantUUID string    `json:"tenant_uuid" format:"uuid"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}
