package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Certification status values reported on a VerificationResult.
const (
	CertificationCertified    = "Certified"
	CertificationNotCertified = "Not certified"
	CertificationFailed       = "Failed"
)

// Display values used when a field is absent from the registry page.
const (
	NotFound       = "Not found"
	NotCertified   = "Not certified"
	ErrorCertifier = "Error"
)

// Scope names, in the order they are always reported.
const (
	ScopeCrops     = "CROPS"
	ScopeHandling  = "HANDLING"
	ScopeLivestock = "LIVESTOCK"
	ScopeWildCrops = "WILD CROPS"
)

// ScopeNames lists the four certification categories of a registry record.
var ScopeNames = []string{ScopeCrops, ScopeHandling, ScopeLivestock, ScopeWildCrops}

// OperationInput is one operation submitted for verification.
type OperationInput struct {
	OperationName string   `json:"operation_name"`
	ID            string   `json:"id"`
	Products      []string `json:"products"`
}

// NewOperationInput trims its arguments and fills in the default operation
// name. It fails when id is empty.
func NewOperationInput(name, id string, products []string) (OperationInput, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return OperationInput{}, fmt.Errorf("registry id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Operation " + id
	}
	cleaned := make([]string, 0, len(products))
	for _, p := range products {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return OperationInput{OperationName: name, ID: id, Products: cleaned}, nil
}

// Scope is one certification category of a record. A nil Status or
// EffectiveDate means the registry showed nothing usable for it; the display
// sentinels are only applied when the scope is serialized.
type Scope struct {
	Name              string
	Listed            bool
	Status            *string
	EffectiveDate     *string
	CertifiedProducts []string
}

// UnlistedScope returns the placeholder for a category absent from the page.
func UnlistedScope(name string) Scope {
	return Scope{Name: name, CertifiedProducts: []string{}}
}

// IsCertified reports whether the scope status indicates active certification.
func (s Scope) IsCertified() bool {
	if s.Status == nil {
		return false
	}
	status := strings.ToLower(*s.Status)
	return strings.Contains(status, "certified") && !strings.Contains(status, "not certified")
}

// DisplayStatus returns the status text shown to callers.
func (s Scope) DisplayStatus() string {
	switch {
	case s.Status != nil:
		return *s.Status
	case s.Listed:
		return NotCertified
	default:
		return NotFound
	}
}

// DisplayEffectiveDate returns the effective date text shown to callers.
func (s Scope) DisplayEffectiveDate() string {
	if s.EffectiveDate == nil {
		return NotFound
	}
	return *s.EffectiveDate
}

type scopeJSON struct {
	ScopeName         string   `json:"scope_name"`
	Status            string   `json:"status"`
	EffectiveDate     string   `json:"effective_date"`
	CertifiedProducts []string `json:"certified_products"`
}

func (s Scope) MarshalJSON() ([]byte, error) {
	products := s.CertifiedProducts
	if products == nil {
		products = []string{}
	}
	return json.Marshal(scopeJSON{
		ScopeName:         s.Name,
		Status:            s.DisplayStatus(),
		EffectiveDate:     s.DisplayEffectiveDate(),
		CertifiedProducts: products,
	})
}

// UnmarshalJSON reverses MarshalJSON so sessions survive a round trip through
// a shared store.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var raw scopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Scope{Name: raw.ScopeName, Listed: raw.Status != NotFound, CertifiedProducts: raw.CertifiedProducts}
	if raw.Status != NotFound && raw.Status != NotCertified {
		status := raw.Status
		s.Status = &status
	}
	if raw.EffectiveDate != NotFound {
		date := raw.EffectiveDate
		s.EffectiveDate = &date
	}
	if s.CertifiedProducts == nil {
		s.CertifiedProducts = []string{}
	}
	return nil
}

// CertificationRecord is the structured content of one registry page.
type CertificationRecord struct {
	OperationName        string
	Certifier            string
	EffectiveDate        *string
	AllCertifiedProducts []string
	Scopes               []Scope
}

// IsCertified reports whether any scope is actively certified.
func (r *CertificationRecord) IsCertified() bool {
	for _, s := range r.Scopes {
		if s.IsCertified() {
			return true
		}
	}
	return false
}

// VerificationResult is the outcome for one submitted operation.
type VerificationResult struct {
	OperationName        string   `json:"operation_name"`
	ID                   string   `json:"id"`
	Certifier            string   `json:"certifier"`
	CertificationStatus  string   `json:"certification_status"`
	EffectiveDate        string   `json:"effective_date"`
	AllCertifiedProducts []string `json:"all_certified_products"`
	MatchingProducts     []string `json:"matching_products"`
	MissingProducts      []string `json:"missing_products"`
	SourceURL            string   `json:"source_url"`
	Scopes               []Scope  `json:"scopes,omitempty"`
	Error                string   `json:"error,omitempty"`
}

// SessionStatus is the lifecycle state of a verification session.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionError      SessionStatus = "error"
)

// IsTerminal reports whether no further transition is allowed.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionError
}

func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionPending, SessionProcessing, SessionCompleted, SessionError:
		return true
	}
	return false
}

// VerificationSession tracks one submitted batch while a client polls it.
type VerificationSession struct {
	ID        string               `json:"id"`
	Owner     string               `json:"owner,omitempty"`
	Total     int                  `json:"total"`
	Completed int                  `json:"completed"`
	Current   string               `json:"current"`
	Results   []VerificationResult `json:"results"`
	Status    SessionStatus        `json:"status"`
	Error     string               `json:"error,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Clone returns a copy whose result list can be read without holding the
// store's lock.
func (s *VerificationSession) Clone() *VerificationSession {
	out := *s
	out.Results = make([]VerificationResult, len(s.Results))
	copy(out.Results, s.Results)
	return &out
}
