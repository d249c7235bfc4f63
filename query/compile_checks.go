package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-provisioning/core"
)

var (
	_ gocmd.Querier[GetAccountMessage, core.Account]                           = (*GetAccountQuery)(nil)
	_ gocmd.Querier[ListProjectsMessage, []core.ProjectRef]                    = (*ListProjectsQuery)(nil)
	_ gocmd.Querier[ListProjectAccountPairsMessage, []core.ProjectAccountPair] = (*ListProjectAccountPairsQuery)(nil)
	_ gocmd.Querier[GetResourceMessage, core.ResourceLease]                    = (*GetResourceQuery)(nil)
	_ gocmd.Querier[ListResourcesMessage, []core.ResourceLease]                = (*ListResourcesQuery)(nil)
	_ gocmd.Querier[StatusMessage, core.StatusReport]                          = (*StatusQuery)(nil)
)
