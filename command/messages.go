package command

import (
	"strings"

	"github.com/goliatone/go-provisioning/core"
)

const (
	TypeCreateAccount       = "provisioning.command.account.create"
	TypeDeleteAccount       = "provisioning.command.account.delete"
	TypeBootstrapAccounts   = "provisioning.command.account.bootstrap"
	TypeCreateProject       = "provisioning.command.project.create"
	TypeDeleteProject       = "provisioning.command.project.delete"
	TypeProvisionResource   = "provisioning.command.resource.provision"
	TypeRetryResource       = "provisioning.command.resource.retry"
	TypeDeprovisionResource = "provisioning.command.resource.deprovision"
)

type CreateAccountMessage struct {
	Request core.CreateAccountRequest
}

func (CreateAccountMessage) Type() string { return TypeCreateAccount }

func (m CreateAccountMessage) Validate() error {
	if err := validateAPIKey(m.Request.APIKey); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.Name) == "" {
		return commandValidationError("name", "account name is required")
	}
	return nil
}

type DeleteAccountMessage struct {
	APIKey string
}

func (DeleteAccountMessage) Type() string { return TypeDeleteAccount }

func (m DeleteAccountMessage) Validate() error {
	return validateAPIKey(m.APIKey)
}

type BootstrapAccountsMessage struct {
	Records []core.BootstrapRecord
}

func (BootstrapAccountsMessage) Type() string { return TypeBootstrapAccounts }

func (m BootstrapAccountsMessage) Validate() error {
	for _, record := range m.Records {
		if err := validateAPIKey(record.Key); err != nil {
			return err
		}
	}
	return nil
}

type CreateProjectMessage struct {
	Request core.ProjectRequest
}

func (CreateProjectMessage) Type() string { return TypeCreateProject }

func (m CreateProjectMessage) Validate() error {
	return validateProjectRequest(m.Request)
}

type DeleteProjectMessage struct {
	Request core.ProjectRequest
}

func (DeleteProjectMessage) Type() string { return TypeDeleteProject }

func (m DeleteProjectMessage) Validate() error {
	return validateProjectRequest(m.Request)
}

type ProvisionResourceMessage struct {
	Request core.ResourceRequest
}

func (ProvisionResourceMessage) Type() string { return TypeProvisionResource }

func (m ProvisionResourceMessage) Validate() error {
	return validateResourceRequest(m.Request)
}

type RetryResourceMessage struct {
	Request core.ResourceRequest
}

func (RetryResourceMessage) Type() string { return TypeRetryResource }

func (m RetryResourceMessage) Validate() error {
	return validateResourceRequest(m.Request)
}

type DeprovisionResourceMessage struct {
	Request core.ResourceRequest
}

func (DeprovisionResourceMessage) Type() string { return TypeDeprovisionResource }

func (m DeprovisionResourceMessage) Validate() error {
	return validateResourceRequest(m.Request)
}

func validateAPIKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return commandValidationError("api_key", "api key is required")
	}
	return commandWrapValidation(core.ValidateAPIKey(key), "command: invalid api key")
}

func validateProjectRequest(req core.ProjectRequest) error {
	if err := validateAPIKey(req.APIKey); err != nil {
		return err
	}
	if strings.TrimSpace(req.ProjectName) == "" {
		return commandValidationError("project", "project name is required")
	}
	return commandWrapValidation(core.ValidateProjectName(req.ProjectName), "command: invalid project name")
}

func validateResourceRequest(req core.ResourceRequest) error {
	if err := validateProjectRequest(core.ProjectRequest{APIKey: req.APIKey, ProjectName: req.ProjectName}); err != nil {
		return err
	}
	if strings.TrimSpace(string(req.StoreType)) == "" {
		return commandValidationError("store_type", "store type is required")
	}
	return commandWrapValidation(core.NormalizeStoreType(string(req.StoreType)).Validate(), "command: invalid store type")
}
