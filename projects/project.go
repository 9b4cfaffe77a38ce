package projects

import "time"

// Type says where a project's OpenAPI document comes from.
type Type string

const (
	TypeURL  Type = "url"
	TypeFile Type = "file"
)

type AccountType string

const (
	AccountIndividual   AccountType = "individual"
	AccountOrganization AccountType = "organization"
)

// Project is an API under test. ID is assigned by the backend on create.
type Project struct {
	ID             string      `json:"project_uuid"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Type           Type        `json:"type"`
	AccountType    AccountType `json:"account_type"`
	OpenAPIURL     string      `json:"openapi_url,omitempty"`
	Status         string      `json:"status"`
	EndpointsCount int         `json:"endpoints_count"`
	TestsCount     int         `json:"tests_count"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Endpoint is one operation of a project's API. It is always addressed
// through its parent project.
type Endpoint struct {
	ID          string              `json:"id"`
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	Tag         string              `json:"tag,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  []Parameter         `json:"parameters"`
	RequestBody *RequestBody        `json:"request_body,omitempty"`
	Responses   map[string]Response `json:"responses,omitempty"` // Keyed by status code
}

type Parameter struct {
	Name        string         `json:"name"`
	In          string         `json:"in"` // path, query, header or cookie
	Required    bool           `json:"required"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
}

type RequestBody struct {
	Description string         `json:"description,omitempty"`
	Required    bool           `json:"required"`
	Content     map[string]any `json:"content,omitempty"`
}

type Response struct {
	Description string         `json:"description"`
	Content     map[string]any `json:"content,omitempty"`
}
