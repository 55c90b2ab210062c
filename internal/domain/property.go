package domain

import "time"

// PropertyDefinition is one field of a tenant's schema for an object type
type PropertyDefinition struct {
	ObjectType string `json:"object_type"`
	Name       string `json:"name"` // internal name, unique per (tenant, objectType)
	Label      string `json:"label"`
	Type       string `json:"type"`
	FieldType  string `json:"field_type"`
	GroupName  string `json:"group_name,omitempty"`
	IsBuiltIn  bool   `json:"is_built_in"`
}

// PropertyCreate is the payload of a property creation in the target tenant
type PropertyCreate struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Type      string `json:"type"`
	FieldType string `json:"fieldType"`
	GroupName string `json:"groupName"`
}

// Category classifies where a mapping row comes from
type Category string

const (
	CategoryDefault     Category = "default"
	CategoryCustom      Category = "custom"
	CategoryUserDefined Category = "userdefined"
)

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryDefault, CategoryCustom, CategoryUserDefined:
		return true
	}
	return false
}

// Persistable reports whether records of this category may live in the changes document.
// Default rows are derived from the catalog and never stored.
func (c Category) Persistable() bool {
	return c.Valid() && c != CategoryDefault
}

// PropertyMapping is one reconciled row: "this source field becomes that target field"
type PropertyMapping struct {
	ObjectType      string   `json:"object_type"`
	Key             string   `json:"key"` // canonical source identity the row is reconciled under
	SourceIdentity  string   `json:"source_identity"`
	SourceLabel     string   `json:"source_label"`
	TargetIdentity  string   `json:"target_identity"`
	TargetLabel     string   `json:"target_label"`
	Category        Category `json:"category"`
	RemotelyCreated bool     `json:"remotely_created"`
	Version         int64    `json:"version"`
}

// Outcome is the bucket a migration candidate ends up in
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeAlreadyExists Outcome = "already_exists"
	OutcomeFailed        Outcome = "failed"
)

// PropertyOutcome records what happened to one migration candidate
type PropertyOutcome struct {
	RunID      string    `json:"run_id"`
	UserID     string    `json:"user_id"`
	ObjectType string    `json:"object_type"`
	Name       string    `json:"name"`
	Label      string    `json:"label"`
	Outcome    Outcome   `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// MigrationBatchResult summarizes one orchestrator run.
// Every candidate is counted in exactly one of the three counters.
type MigrationBatchResult struct {
	RunID              string            `json:"run_id"`
	CreatedCount       int               `json:"created_count"`
	AlreadyExistsCount int               `json:"already_exists_count"`
	FailedCount        int               `json:"failed_count"`
	AlreadyExistsList  []string          `json:"already_exists_list"`
	Outcomes           []PropertyOutcome `json:"outcomes"`
}

// Record adds an outcome to the result and bumps the matching counter
func (r *MigrationBatchResult) Record(o PropertyOutcome) {
	switch o.Outcome {
	case OutcomeCreated:
		r.CreatedCount++
	case OutcomeAlreadyExists:
		r.AlreadyExistsCount++
		r.AlreadyExistsList = append(r.AlreadyExistsList, o.Name)
	default:
		r.FailedCount++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Total is the number of candidates covered by the result
func (r *MigrationBatchResult) Total() int {
	return r.CreatedCount + r.AlreadyExistsCount + r.FailedCount
}
