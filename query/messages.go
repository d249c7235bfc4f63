package query

import (
	"strings"

	"github.com/goliatone/go-provisioning/core"
)

const (
	TypeGetAccount              = "provisioning.query.account.get"
	TypeListProjects            = "provisioning.query.project.list"
	TypeListProjectAccountPairs = "provisioning.query.project.pairs"
	TypeGetResource             = "provisioning.query.resource.get"
	TypeListResources           = "provisioning.query.resource.list"
	TypeStatus                  = "provisioning.query.status"
)

type GetAccountMessage struct {
	APIKey string
}

func (GetAccountMessage) Type() string { return TypeGetAccount }

func (m GetAccountMessage) Validate() error {
	return requireField("api_key", m.APIKey)
}

type ListProjectsMessage struct {
	APIKey string
}

func (ListProjectsMessage) Type() string { return TypeListProjects }

func (m ListProjectsMessage) Validate() error {
	return requireField("api_key", m.APIKey)
}

type ListProjectAccountPairsMessage struct{}

func (ListProjectAccountPairsMessage) Type() string { return TypeListProjectAccountPairs }

type GetResourceMessage struct {
	Request core.ResourceRequest
}

func (GetResourceMessage) Type() string { return TypeGetResource }

func (m GetResourceMessage) Validate() error {
	if err := requireField("api_key", m.Request.APIKey); err != nil {
		return err
	}
	if err := requireField("project", m.Request.ProjectName); err != nil {
		return err
	}
	return requireField("store_type", string(m.Request.StoreType))
}

type ListResourcesMessage struct {
	Request core.ProjectRequest
}

func (ListResourcesMessage) Type() string { return TypeListResources }

func (m ListResourcesMessage) Validate() error {
	if err := requireField("api_key", m.Request.APIKey); err != nil {
		return err
	}
	return requireField("project", m.Request.ProjectName)
}

type StatusMessage struct{}

func (StatusMessage) Type() string { return TypeStatus }

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return queryValidationError(field, field+" is required")
	}
	return nil
}
