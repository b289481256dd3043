package server

import (
	"reqline/internal/domain"
	"reqline/internal/registry"
)

type healthOutput struct {
	Body struct {
		Status string `json:"status"`
		Time   string `json:"time"`
	}
}

type capabilitySubmission struct {
	Quantity       string         `json:"quantity" minLength:"1"`
	Method         string         `json:"method" minLength:"1"`
	Specifications map[string]any `json:"specifications"`
	ResultOutput   map[string]any `json:"result_output"`
	IsActive       bool           `json:"is_active"`
}

type createCapabilityInput struct {
	Body capabilitySubmission
}

type capabilityOutput struct {
	Body domain.Capability
}

type listCapabilitiesInput struct {
	Quantity           string `query:"quantity"`
	Method             string `query:"method"`
	CurrentlyAvailable bool   `query:"currently_available"`
}

type capabilityListOutput struct {
	Body []domain.Capability
}

type deactivateCapabilityInput struct {
	Method  string `path:"method"`
	Confirm bool   `query:"confirm"`
}

type messageOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

type templatesInput struct {
	Quantity           string `query:"quantity"`
	Method             string `query:"method"`
	CurrentlyAvailable bool   `query:"currently_available"`
}

type templatesOutput struct {
	Body []registry.CapabilityTemplate
}

type tenantSubmission struct {
	Name          string              `json:"name" minLength:"1"`
	ContactPerson string              `json:"contact_person,omitempty"`
	Limitations   []domain.Limitation `json:"limitations"`
}

type createTenantInput struct {
	Body tenantSubmission
}

type tenantOutput struct {
	Body domain.Tenant
}

type listTenantsInput struct {
	Name string `query:"name"`
}

type tenantListOutput struct {
	Body []domain.Tenant
}

type tenantStateInput struct {
	UUID string `path:"uuid" format:"uuid"`
	Body struct {
		IsActive bool `json:"is_active"`
	}
}

type limitationsInput struct {
	CurrentlyAvailable bool `query:"currently_available"`
}

type limitationsOutput struct {
	Body []domain.Limitation
}

type requestSubmission struct {
	Quantity   string                    `json:"quantity" minLength:"1"`
	Methods    []string                  `json:"methods" minItems:"1"`
	Parameters map[string]map[string]any `json:"parameters"`
}

type createRequestInput struct {
	Body requestSubmission
}

type requestOutput struct {
	Body domain.Request
}

type requestByIDInput struct {
	UUID string `path:"uuid" format:"uuid"`
}

type listRequestsInput struct {
	Quantity string `query:"quantity"`
	Method   string `query:"method"`
}

type requestListOutput struct {
	Body []domain.Request
}

type statusChange struct {
	Status  string `json:"status" minLength:"1"`
	Message string `json:"message,omitempty"`
}

type requestStatusInput struct {
	UUID string `path:"uuid" format:"uuid"`
	Body statusChange
}

type resultSubmission struct {
	RequestUUID string                    `json:"request_uuid,omitempty" format:"uuid"`
	Quantity    string                    `json:"quantity" minLength:"1"`
	Methods     []string                  `json:"methods" minItems:"1" maxItems:"1"`
	Parameters  map[string]map[string]any `json:"parameters"`
	Data        map[string]any            `json:"data"`
}

type createResultInput struct {
	Body resultSubmission
}

type resultOutput struct {
	Body domain.Result
}

type resultByIDInput struct {
	UUID string `path:"uuid" format:"uuid"`
}

type listResultsInput struct {
	Quantity string `query:"quantity"`
	Method   string `query:"method"`
}

type resultListOutput struct {
	Body []domain.Result
}

type resultStatusInput struct {
	UUID string `path:"uuid" format:"uuid"`
	Body statusChange
}

type historyOutput struct {
	Body []domain.StatusLogEntry
}
