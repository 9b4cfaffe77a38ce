package projects

import (
	"io"
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-api-dashboard/internal/validation"
	"github.com/jrsteele09/go-api-dashboard/transport"
)

// FileField is the multipart part name the backend reads the OpenAPI file from.
const FileField = "openapi_file"

// File is an OpenAPI document uploaded with a request.
type File struct {
	Name    string
	Content io.Reader
}

// ListParams filter the project list.
type ListParams struct {
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
	Search   string `json:"search,omitempty"`
	Ordering string `json:"ordering,omitempty"`
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(p.PageSize))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.Ordering != "" {
		v.Set("ordering", p.Ordering)
	}
	return v
}

// CreateRequest is the payload for a new project. When File is set the
// request is sent as multipart, otherwise as JSON.
type CreateRequest struct {
	Name        string      `json:"name" validate:"required,max=255"`
	Description string      `json:"description"`
	Type        Type        `json:"type" validate:"omitempty,oneof=url file"`
	AccountType AccountType `json:"account_type" validate:"omitempty,oneof=individual organization"`
	OpenAPIURL  string      `json:"openapi_url,omitempty" validate:"omitempty,url"`
	File        *File       `json:"-"`
}

// WithDefaults fills the type and account type when unset.
func (r CreateRequest) WithDefaults() CreateRequest {
	if r.Type == "" {
		r.Type = TypeURL
	}
	if r.AccountType == "" {
		r.AccountType = AccountIndividual
	}
	return r
}

// Validate checks the request as it will be sent. Call WithDefaults first.
func (r CreateRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	return validateSource(r.Type, r.OpenAPIURL, r.File)
}

func (r CreateRequest) body() any {
	if r.File == nil {
		return r
	}
	return transport.NewMultipart().
		Field("name", r.Name).
		Field("description", r.Description).
		Field("type", string(r.Type)).
		Field("account_type", string(r.AccountType)).
		File(FileField, r.File.Name, r.File.Content)
}

// UpdateRequest is a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	Name        *string      `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string      `json:"description,omitempty"`
	AccountType *AccountType `json:"account_type,omitempty" validate:"omitempty,oneof=individual organization"`
	OpenAPIURL  *string      `json:"openapi_url,omitempty" validate:"omitempty,url"`
	File        *File        `json:"-"`
}

func (r UpdateRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	if r.OpenAPIURL != nil && *r.OpenAPIURL != "" && r.File != nil {
		return errBothSources
	}
	return nil
}

func (r UpdateRequest) body() any {
	if r.File == nil {
		return r
	}
	m := transport.NewMultipart()
	if r.Name != nil {
		m.Field("name", *r.Name)
	}
	if r.Description != nil {
		m.Field("description", *r.Description)
	}
	if r.AccountType != nil {
		m.Field("account_type", string(*r.AccountType))
	}
	return m.File(FileField, r.File.Name, r.File.Content)
}

// SpecSource is a replacement OpenAPI document: exactly one of URL or File.
type SpecSource struct {
	URL  string `json:"openapi_url,omitempty" validate:"omitempty,url"`
	File *File  `json:"-"`
}

func (s SpecSource) Validate() error {
	if err := validation.Struct(s); err != nil {
		return err
	}
	if s.URL == "" && s.File == nil {
		return validation.Field("openapi_url", "Provide an OpenAPI URL or upload a file.")
	}
	if s.URL != "" && s.File != nil {
		return errBothSources
	}
	return nil
}

func (s SpecSource) body() any {
	if s.File == nil {
		return s
	}
	return transport.NewMultipart().File(FileField, s.File.Name, s.File.Content)
}

var errBothSources = validation.Field(FileField, "Provide either an OpenAPI URL or a file, not both.")

func validateSource(t Type, openAPIURL string, file *File) error {
	switch {
	case openAPIURL != "" && file != nil:
		return errBothSources
	case t == TypeURL && openAPIURL == "" && file == nil:
		return validation.Field("openapi_url", "An OpenAPI URL is required for URL projects.")
	case t == TypeFile && file == nil:
		return validation.Field(FileField, "An OpenAPI file is required for file projects.")
	}
	return nil
}
