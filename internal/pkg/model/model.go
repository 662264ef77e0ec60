package model

// ################################
// GET /users/me

type MeResponse struct {
	Success bool `json:"success"`
	User    *struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
}

// ################################

// ################################
// GET /users/{id}/installations

type InstallationsResponse struct {
	Success bool           `json:"success"`
	Records []Installation `json:"records"`
}

type Installation struct {
	IDSite     int64  `json:"idSite"`
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

// ################################

// ################################
// GET /installations/{id}/system-overview
// GET /installations/{id}/diagnostics
// GET /installations/{id}/widgets
//
// These are decoded into a Document because the payloads are loosely typed.

const (
	SourceSystemOverview = "system_overview"
	SourceDiagnostics    = "diagnostics"
)

// ################################
