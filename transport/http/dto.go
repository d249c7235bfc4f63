package httptransport

import (
	"time"

	"github.com/goliatone/go-provisioning/core"
)

type createAccountBody struct {
	Name string `json:"name"`
}

type projectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type accountResponse struct {
	Name      string            `json:"name"`
	Projects  []projectResponse `json:"projects"`
	CreatedAt time.Time         `json:"created_at"`
}

type leaseResponse struct {
	ID          string            `json:"id"`
	StoreType   string            `json:"store_type"`
	Status      string            `json:"status"`
	Handle      string            `json:"handle,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	Attempts    int               `json:"attempts"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type pairResponse struct {
	Project string `json:"project"`
	Account string `json:"account"`
}

type componentResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type statusResponse struct {
	Status     string              `json:"status"`
	Components []componentResponse `json:"components"`
}

func toProjectResponse(project core.ProjectRef) projectResponse {
	return projectResponse{ID: project.ID, Name: project.Name, CreatedAt: project.CreatedAt}
}

func toProjectResponses(projects []core.ProjectRef) []projectResponse {
	out := make([]projectResponse, 0, len(projects))
	for _, project := range projects {
		out = append(out, toProjectResponse(project))
	}
	return out
}

// The API key is never echoed back.
func toAccountResponse(account core.Account) accountResponse {
	return accountResponse{
		Name:      account.Name,
		Projects:  toProjectResponses(account.Projects),
		CreatedAt: account.CreatedAt,
	}
}

func toLeaseResponse(lease core.ResourceLease) leaseResponse {
	return leaseResponse{
		ID:          lease.ID,
		StoreType:   string(lease.StoreType),
		Status:      string(lease.Status),
		Handle:      lease.Handle,
		Credentials: lease.Credentials,
		LastError:   lease.LastError,
		Attempts:    lease.Attempts,
		CreatedAt:   lease.CreatedAt,
		UpdatedAt:   lease.UpdatedAt,
	}
}

func toStatusResponse(report core.StatusReport) statusResponse {
	out := statusResponse{Status: string(report.Status), Components: make([]componentResponse, 0, len(report.Components))}
	for _, component := range report.Components {
		out.Components = append(out.Components, componentResponse{
			Name:   component.Name,
			Status: string(component.Status),
			Error:  component.Error,
		})
	}
	return out
}
