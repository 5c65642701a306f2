// Package models holds the onboarding domain types: the HR record coming in,
// the identity record resolved from the directory, and the enriched profile
// the two merge into.
package models

// HRRecord is the authoritative employee record from the HR system. It is an
// immutable input; ownership passes into the merge and it is never persisted
// by this service.
type HRRecord struct {
	EmployeeID       string `json:"employee_id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	PreferredName    string `json:"preferred_name,omitempty"`
	Email            string `json:"email"`
	Title            string `json:"title"`
	Department       string `json:"department"`
	ManagerEmail     string `json:"manager_email"`
	Location         string `json:"location"`
	Office           string `json:"office"`
	EmploymentType   string `json:"employment_type"`
	EmploymentStatus string `json:"employment_status"`
	StartDate        string `json:"start_date"`
	TerminationDate  string `json:"termination_date,omitempty"`
	CostCenter       string `json:"cost_center"`
	WorkPhone        string `json:"work_phone"`
	MobilePhone      string `json:"mobile_phone"`
	Country          string `json:"country"`
	TimeZone         string `json:"time_zone"`
	LegalEntity      string `json:"legal_entity"`
	Division         string `json:"division"`
}

// IdentityRecord is the result of a directory lookup: the raw profile
// attributes, the deduplicated group names, and the application entitlements.
// It is ephemeral and discarded after the merge.
type IdentityRecord struct {
	Profile      map[string]any
	Groups       []string
	Applications []string
}

// EnrichedProfile is the durable artifact combining HR and directory data,
// keyed by employee identifier. Onboarded is true exactly when the profile
// exists in the store; a failed enrichment never reaches the store.
type EnrichedProfile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Title        string   `json:"title"`
	Department   string   `json:"department"`
	StartDate    string   `json:"startDate"`
	Groups       []string `json:"groups"`
	Applications []string `json:"applications"`
	Onboarded    bool     `json:"onboarded"`
}

// Merge combines one HR record and one identity record into an enriched
// profile. Pure and deterministic: no I/O, no mutation of either input, no
// failure path. The display name is the HR first and last name joined by a
// single space; groups and applications are copied from the identity record.
func Merge(hr HRRecord, idp IdentityRecord) EnrichedProfile {
	return EnrichedProfile{
		ID:           hr.EmployeeID,
		Name:         hr.FirstName + " " + hr.LastName,
		Email:        hr.Email,
		Title:        hr.Title,
		Department:   hr.Department,
		StartDate:    hr.StartDate,
		Groups:       append([]string(nil), idp.Groups...),
		Applications: append([]string(nil), idp.Applications...),
		Onboarded:    true,
	}
}
