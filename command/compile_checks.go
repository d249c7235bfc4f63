package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateAccountMessage]       = (*CreateAccountCommand)(nil)
	_ gocmd.Commander[DeleteAccountMessage]       = (*DeleteAccountCommand)(nil)
	_ gocmd.Commander[BootstrapAccountsMessage]   = (*BootstrapAccountsCommand)(nil)
	_ gocmd.Commander[CreateProjectMessage]       = (*CreateProjectCommand)(nil)
	_ gocmd.Commander[DeleteProjectMessage]       = (*DeleteProjectCommand)(nil)
	_ gocmd.Commander[ProvisionResourceMessage]   = (*ProvisionResourceCommand)(nil)
	_ gocmd.Commander[RetryResourceMessage]       = (*RetryResourceCommand)(nil)
	_ gocmd.Commander[DeprovisionResourceMessage] = (*DeprovisionResourceCommand)(nil)
)
