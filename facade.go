package provisioning

import (
	"fmt"

	provcommand "github.com/goliatone/go-provisioning/command"
	provquery "github.com/goliatone/go-provisioning/query"
)

type CommandQueryService interface {
	provcommand.MutatingService
	provquery.AccountReader
	provquery.ResourceReader
	provquery.StatusReader
}

type Commands struct {
	CreateAccount       *provcommand.CreateAccountCommand
	DeleteAccount       *provcommand.DeleteAccountCommand
	BootstrapAccounts   *provcommand.BootstrapAccountsCommand
	CreateProject       *provcommand.CreateProjectCommand
	DeleteProject       *provcommand.DeleteProjectCommand
	ProvisionResource   *provcommand.ProvisionResourceCommand
	RetryResource       *provcommand.RetryResourceCommand
	DeprovisionResource *provcommand.DeprovisionResourceCommand
}

type Queries struct {
	GetAccount              *provquery.GetAccountQuery
	ListProjects            *provquery.ListProjectsQuery
	ListProjectAccountPairs *provquery.ListProjectAccountPairsQuery
	GetResource             *provquery.GetResourceQuery
	ListResources           *provquery.ListResourcesQuery
	Status                  *provquery.StatusQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	statusReader provquery.StatusReader
}

// WithStatusReader replaces the service as the source of status reports.
func WithStatusReader(reader provquery.StatusReader) FacadeOption {
	return func(options *facadeOptions) {
		options.statusReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("provisioning: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	status := cfg.statusReader
	if status == nil {
		status = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateAccount:       provcommand.NewCreateAccountCommand(service),
		DeleteAccount:       provcommand.NewDeleteAccountCommand(service),
		BootstrapAccounts:   provcommand.NewBootstrapAccountsCommand(service),
		CreateProject:       provcommand.NewCreateProjectCommand(service),
		DeleteProject:       provcommand.NewDeleteProjectCommand(service),
		ProvisionResource:   provcommand.NewProvisionResourceCommand(service),
		RetryResource:       provcommand.NewRetryResourceCommand(service),
		DeprovisionResource: provcommand.NewDeprovisionResourceCommand(service),
	}
	facade.queries = Queries{
		GetAccount:              provquery.NewGetAccountQuery(service),
		ListProjects:            provquery.NewListProjectsQuery(service),
		ListProjectAccountPairs: provquery.NewListProjectAccountPairsQuery(service),
		GetResource:             provquery.NewGetResourceQuery(service),
		ListResources:           provquery.NewListResourcesQuery(service),
		Status:                  provquery.NewStatusQuery(status),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
