package api

// TopologyResponse is the query endpoint payload.
type TopologyResponse struct {
	Resources         []Resource     `json:"resources"`
	Relationships     []Relationship `json:"relationships"`
	ExternalResources []Resource     `json:"externalResources"`
}

// RenderRequest is the renderer input contract.
type RenderRequest struct {
	Resources             []Resource     `json:"resources"`
	Relationships         []Relationship `json:"relationships"`
	ExternalResources     []Resource     `json:"externalResources"`
	ShowExternalResources bool           `json:"showExternalResources"`
	Highlight             string         `json:"highlight,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}
