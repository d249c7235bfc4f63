package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-provisioning/core"
)

type MutatingService interface {
	CreateAccount(ctx context.Context, req core.CreateAccountRequest) (core.Account, error)
	DeleteAccount(ctx context.Context, apiKey string) error
	Bootstrap(ctx context.Context, records []core.BootstrapRecord) (int, error)
	CreateProject(ctx context.Context, req core.ProjectRequest) (core.ProjectRef, error)
	DeleteProject(ctx context.Context, req core.ProjectRequest) error
	ProvisionResource(ctx context.Context, req core.ResourceRequest) (core.ResourceLease, error)
	RetryResource(ctx context.Context, req core.ResourceRequest) (core.ResourceLease, error)
	DeprovisionResource(ctx context.Context, req core.ResourceRequest) (core.ResourceLease, error)
}

type CreateAccountCommand struct {
	service MutatingService
}

func NewCreateAccountCommand(service MutatingService) *CreateAccountCommand {
	return &CreateAccountCommand{service: service}
}

func (c *CreateAccountCommand) Execute(ctx context.Context, msg CreateAccountMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: account service is required")
	}
	out, err := c.service.CreateAccount(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteAccountCommand struct {
	service MutatingService
}

func NewDeleteAccountCommand(service MutatingService) *DeleteAccountCommand {
	return &DeleteAccountCommand{service: service}
}

func (c *DeleteAccountCommand) Execute(ctx context.Context, msg DeleteAccountMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: account service is required")
	}
	return c.service.DeleteAccount(ctx, msg.APIKey)
}

type BootstrapAccountsCommand struct {
	service MutatingService
}

func NewBootstrapAccountsCommand(service MutatingService) *BootstrapAccountsCommand {
	return &BootstrapAccountsCommand{service: service}
}

// Execute stores the number of accounts created.
func (c *BootstrapAccountsCommand) Execute(ctx context.Context, msg BootstrapAccountsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: bootstrap service is required")
	}
	created, err := c.service.Bootstrap(ctx, msg.Records)
	if err != nil {
		return err
	}
	storeResult(ctx, created)
	return nil
}

type CreateProjectCommand struct {
	service MutatingService
}

func NewCreateProjectCommand(service MutatingService) *CreateProjectCommand {
	return &CreateProjectCommand{service: service}
}

func (c *CreateProjectCommand) Execute(ctx context.Context, msg CreateProjectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: project service is required")
	}
	out, err := c.service.CreateProject(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteProjectCommand struct {
	service MutatingService
}

func NewDeleteProjectCommand(service MutatingService) *DeleteProjectCommand {
	return &DeleteProjectCommand{service: service}
}

func (c *DeleteProjectCommand) Execute(ctx context.Context, msg DeleteProjectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: project service is required")
	}
	return c.service.DeleteProject(ctx, msg.Request)
}

type ProvisionResourceCommand struct {
	service MutatingService
}

func NewProvisionResourceCommand(service MutatingService) *ProvisionResourceCommand {
	return &ProvisionResourceCommand{service: service}
}

func (c *ProvisionResourceCommand) Execute(ctx context.Context, msg ProvisionResourceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: provisioning service is required")
	}
	return storeLease(ctx, c.service.ProvisionResource, msg.Request)
}

type RetryResourceCommand struct {
	service MutatingService
}

func NewRetryResourceCommand(service MutatingService) *RetryResourceCommand {
	return &RetryResourceCommand{service: service}
}

func (c *RetryResourceCommand) Execute(ctx context.Context, msg RetryResourceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: provisioning service is required")
	}
	return storeLease(ctx, c.service.RetryResource, msg.Request)
}

type DeprovisionResourceCommand struct {
	service MutatingService
}

func NewDeprovisionResourceCommand(service MutatingService) *DeprovisionResourceCommand {
	return &DeprovisionResourceCommand{service: service}
}

func (c *DeprovisionResourceCommand) Execute(ctx context.Context, msg DeprovisionResourceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: provisioning service is required")
	}
	return storeLease(ctx, c.service.DeprovisionResource, msg.Request)
}

// storeLease stores the lease even when run fails, so callers can report
// the failed state.
func storeLease(
	ctx context.Context,
	run func(context.Context, core.ResourceRequest) (core.ResourceLease, error),
	req core.ResourceRequest,
) error {
	lease, err := run(ctx, req)
	if lease.ID != "" {
		storeResult(ctx, lease)
	}
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
