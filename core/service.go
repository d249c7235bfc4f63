package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	accountStore      AccountStore
	leaseStore        LeaseStore
	storeRegistry     StoreRegistry
	tenants           *TenantRegistry
	provisioner       *ResourceProvisioner
	gate              *tenantGate
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	AccountStore      AccountStore
	LeaseStore        LeaseStore
	StoreRegistry     StoreRegistry
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("provisioning", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("provisioning"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.accountStore == nil || builder.leaseStore == nil) && builder.repositoryFactory != nil {
		var stores StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			stores = built
		} else if provided, ok := builder.repositoryFactory.(StoreProvider); ok {
			stores = provided
		}
		if stores != nil {
			if builder.accountStore == nil {
				builder.accountStore = stores.AccountStore()
			}
			if builder.leaseStore == nil {
				builder.leaseStore = stores.LeaseStore()
			}
		}
	}
	if builder.accountStore == nil {
		builder.accountStore = NewMemoryAccountStore()
	}
	if builder.leaseStore == nil {
		builder.leaseStore = NewMemoryLeaseStore()
	}
	if builder.storeRegistry == nil {
		builder.storeRegistry = NewStoreRegistry()
	}
	for _, storeType := range sortedClientTypes(builder.storeClients) {
		if err := builder.storeRegistry.Register(storeType, builder.storeClients[storeType]); err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}
	if builder.locker == nil {
		builder.locker = NewKeyedLocker()
	}

	tenants := NewTenantRegistry(builder.accountStore,
		WithMaxProjects(finalConfig.Tenancy.MaxProjectsPerAccount),
		WithTenantClock(builder.now),
	)
	provisioner := NewResourceProvisioner(builder.leaseStore, builder.storeRegistry,
		WithProvisionerLogger(logger),
		WithProvisionerLocker(builder.locker),
		WithLockTimeout(finalConfig.Provisioning.LockTimeout),
		WithProvisionerClock(builder.now),
	)

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		accountStore:      builder.accountStore,
		leaseStore:        builder.leaseStore,
		storeRegistry:     builder.storeRegistry,
		tenants:           tenants,
		provisioner:       provisioner,
		gate:              newTenantGate(),
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Tenants() *TenantRegistry {
	if s == nil {
		return nil
	}
	return s.tenants
}

func (s *Service) Provisioner() *ResourceProvisioner {
	if s == nil {
		return nil
	}
	return s.provisioner
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		AccountStore:      s.accountStore,
		LeaseStore:        s.leaseStore,
		StoreRegistry:     s.storeRegistry,
	}
}

func (s *Service) CreateAccount(ctx context.Context, req CreateAccountRequest) (account Account, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"account_name": req.Name}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_account", err, fields)
	}()

	account, err = s.tenants.CreateAccount(ctx, req.APIKey, req.Name)
	if err != nil {
		err = s.mapError(err)
		return Account{}, err
	}
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, apiKey string) (account Account, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_account", err, fields)
	}()

	account, err = s.tenants.Lookup(ctx, apiKey)
	if err != nil {
		err = s.mapError(err)
		return Account{}, err
	}
	fields["account_name"] = account.Name
	return account, nil
}

// DeleteAccount releases every resource of every project the account owns,
// then removes the account. The account is kept if any release fails. Work on
// the account is drained first and rejected until the delete returns.
func (s *Service) DeleteAccount(ctx context.Context, apiKey string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "delete_account", err, fields)
	}()

	reopen, err := s.gate.close(ctx, accountGateKey(apiKey))
	if err != nil {
		err = s.mapError(err)
		return err
	}
	defer reopen()

	account, err := s.tenants.Lookup(ctx, apiKey)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	fields["account_name"] = account.Name

	errs := make([]error, 0)
	for _, project := range account.Projects {
		if releaseErr := s.provisioner.DeprovisionAll(ctx, project); releaseErr != nil {
			errs = append(errs, fmt.Errorf("project %s: %w", project.Name, releaseErr))
		}
	}
	if len(errs) > 0 {
		err = s.mapError(errors.Join(errs...))
		return err
	}
	if err = s.tenants.DeleteAccount(ctx, account.Key); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) CreateProject(ctx context.Context, req ProjectRequest) (project ProjectRef, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"project": req.ProjectName}
	defer func() {
		if project.ID != "" {
			fields["project_id"] = project.ID
		}
		s.observeOperation(ctx, startedAt, "create_project", err, fields)
	}()

	leave, err := s.gate.enter(accountGateKey(req.APIKey))
	if err != nil {
		err = s.mapError(err)
		return ProjectRef{}, err
	}
	defer leave()

	project, err = s.tenants.AddProject(ctx, req.APIKey, req.ProjectName)
	if err != nil {
		err = s.mapError(err)
		return ProjectRef{}, err
	}
	return project, nil
}

// DeleteProject releases every live resource of the project and detaches it
// from its account. The project stays attached if any release fails. Resource
// operations on the project are drained first and rejected until the delete
// returns.
func (s *Service) DeleteProject(ctx context.Context, req ProjectRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"project": req.ProjectName}
	defer func() {
		s.observeOperation(ctx, startedAt, "delete_project", err, fields)
	}()

	leave, err := s.gate.enter(accountGateKey(req.APIKey))
	if err != nil {
		err = s.mapError(err)
		return err
	}
	defer leave()
	reopen, err := s.gate.close(ctx, projectGateKey(req.APIKey, req.ProjectName))
	if err != nil {
		err = s.mapError(err)
		return err
	}
	defer reopen()

	project, err := s.tenants.GetProject(ctx, req.APIKey, req.ProjectName)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	fields["project_id"] = project.ID
	if err = s.provisioner.DeprovisionAll(ctx, project); err != nil {
		err = s.mapError(err)
		return err
	}
	if err = s.tenants.RemoveProject(ctx, req.APIKey, req.ProjectName); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) ListProjects(ctx context.Context, apiKey string) (projects []ProjectRef, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["count"] = len(projects)
		s.observeOperation(ctx, startedAt, "list_projects", err, fields)
	}()

	projects, err = s.tenants.ListProjects(ctx, apiKey)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	return projects, nil
}

func (s *Service) ListProjectAccountPairs(ctx context.Context) (pairs []ProjectAccountPair, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["count"] = len(pairs)
		s.observeOperation(ctx, startedAt, "list_project_account_pairs", err, fields)
	}()

	pairs, err = s.tenants.ListProjectAccountPairs(ctx)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	return pairs, nil
}

// Bootstrap seeds accounts from records, skipping keys that already exist.
func (s *Service) Bootstrap(ctx context.Context, records []BootstrapRecord) (created int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"records": len(records)}
	defer func() {
		fields["created"] = created
		s.observeOperation(ctx, startedAt, "bootstrap", err, fields)
	}()

	created, err = s.tenants.Bootstrap(ctx, records)
	if err != nil {
		err = s.mapError(err)
		return created, err
	}
	return created, nil
}

func (s *Service) ProvisionResource(ctx context.Context, req ResourceRequest) (ResourceLease, error) {
	return s.runResourceOperation(ctx, "provision_resource", req, s.provisioner.Provision)
}

func (s *Service) RetryResource(ctx context.Context, req ResourceRequest) (ResourceLease, error) {
	return s.runResourceOperation(ctx, "retry_resource", req, s.provisioner.Retry)
}

func (s *Service) DeprovisionResource(ctx context.Context, req ResourceRequest) (ResourceLease, error) {
	return s.runResourceOperation(ctx, "deprovision_resource", req, s.provisioner.Deprovision)
}

func (s *Service) GetResource(ctx context.Context, req ResourceRequest) (ResourceLease, error) {
	return s.runResourceOperation(ctx, "get_resource", req, s.provisioner.Get)
}

func (s *Service) ListResources(ctx context.Context, req ProjectRequest) (leases []ResourceLease, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"project": req.ProjectName}
	defer func() {
		fields["count"] = len(leases)
		s.observeOperation(ctx, startedAt, "list_resources", err, fields)
	}()

	project, err := s.tenants.GetProject(ctx, req.APIKey, req.ProjectName)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	fields["project_id"] = project.ID
	leases, err = s.provisioner.List(ctx, project)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	return leases, nil
}

type leaseOperation func(ctx context.Context, project ProjectRef, storeType StoreType) (ResourceLease, error)

func (s *Service) runResourceOperation(
	ctx context.Context,
	operation string,
	req ResourceRequest,
	run leaseOperation,
) (lease ResourceLease, err error) {
	startedAt := time.Now().UTC()
	storeType := NormalizeStoreType(string(req.StoreType))
	fields := map[string]any{
		"project":    req.ProjectName,
		"store_type": string(storeType),
	}
	defer func() {
		if lease.ID != "" {
			fields["lease_id"] = lease.ID
			fields["lease_status"] = string(lease.Status)
		}
		s.observeOperation(ctx, startedAt, operation, err, fields)
	}()

	leave, err := s.gate.enter(accountGateKey(req.APIKey), projectGateKey(req.APIKey, req.ProjectName))
	if err != nil {
		err = s.mapError(err)
		return ResourceLease{}, err
	}
	defer leave()

	project, err := s.tenants.GetProject(ctx, req.APIKey, req.ProjectName)
	if err != nil {
		err = s.mapError(err)
		return ResourceLease{}, err
	}
	fields["project_id"] = project.ID

	lease, err = run(ctx, project, storeType)
	if err != nil {
		err = s.mapError(err)
		return lease, err
	}
	return lease, nil
}

// Status pings every registered store that supports it. All reachable is
// healthy, some unreachable is degraded and none reachable is unhealthy.
func (s *Service) Status(ctx context.Context) StatusReport {
	report := StatusReport{Status: HealthHealthy, Components: []ComponentStatus{}}
	if s == nil {
		report.Status = HealthUnhealthy
		return report
	}

	if pinger, ok := s.accountStore.(StorePinger); ok {
		component := pingComponent(ctx, "tenancy", pinger)
		report.Components = append(report.Components, component)
		if component.Status != HealthHealthy {
			report.Status = HealthUnhealthy
		}
	}

	pinged, failed := 0, 0
	for _, storeType := range s.storeRegistry.Types() {
		client, ok := s.storeRegistry.Get(storeType)
		if !ok {
			continue
		}
		pinger, ok := client.(StorePinger)
		if !ok {
			report.Components = append(report.Components, ComponentStatus{
				Name:   string(storeType),
				Status: HealthHealthy,
			})
			continue
		}
		pinged++
		component := pingComponent(ctx, string(storeType), pinger)
		if component.Status != HealthHealthy {
			failed++
		}
		report.Components = append(report.Components, component)
	}

	if report.Status == HealthHealthy && failed > 0 {
		if failed == pinged {
			report.Status = HealthUnhealthy
		} else {
			report.Status = HealthDegraded
		}
	}
	return report
}

func pingComponent(ctx context.Context, name string, pinger StorePinger) ComponentStatus {
	if err := pinger.Ping(ctx); err != nil {
		return ComponentStatus{Name: name, Status: HealthUnhealthy, Error: err.Error()}
	}
	return ComponentStatus{Name: name, Status: HealthHealthy}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func sortedClientTypes(clients map[StoreType]StoreClient) []StoreType {
	types := make([]StoreType, 0, len(clients))
	for storeType := range clients {
		types = append(types, storeType)
	}
	return sortedStoreTypes(types)
}
