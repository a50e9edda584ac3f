package api

// CreateSessionRequest is the body for POST /api/v1/sessions and
// POST /api/v1/sessions/:id/messages.
type CreateSessionRequest struct {
	Query     string `json:"query"`
	QueryType string `json:"queryType"`
	RepoName  string `json:"repoName,omitempty"`
}
