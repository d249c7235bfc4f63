package query

import (
	"context"

	"github.com/goliatone/go-provisioning/core"
)

type AccountReader interface {
	GetAccount(ctx context.Context, apiKey string) (core.Account, error)
	ListProjects(ctx context.Context, apiKey string) ([]core.ProjectRef, error)
	ListProjectAccountPairs(ctx context.Context) ([]core.ProjectAccountPair, error)
}

type ResourceReader interface {
	GetResource(ctx context.Context, req core.ResourceRequest) (core.ResourceLease, error)
	ListResources(ctx context.Context, req core.ProjectRequest) ([]core.ResourceLease, error)
}

type StatusReader interface {
	Status(ctx context.Context) core.StatusReport
}

type GetAccountQuery struct {
	reader AccountReader
}

func NewGetAccountQuery(reader AccountReader) *GetAccountQuery {
	return &GetAccountQuery{reader: reader}
}

func (q *GetAccountQuery) Query(ctx context.Context, msg GetAccountMessage) (core.Account, error) {
	if q == nil || q.reader == nil {
		return core.Account{}, queryDependencyError("query: account reader is required")
	}
	return q.reader.GetAccount(ctx, msg.APIKey)
}

type ListProjectsQuery struct {
	reader AccountReader
}

func NewListProjectsQuery(reader AccountReader) *ListProjectsQuery {
	return &ListProjectsQuery{reader: reader}
}

func (q *ListProjectsQuery) Query(ctx context.Context, msg ListProjectsMessage) ([]core.ProjectRef, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: account reader is required")
	}
	return q.reader.ListProjects(ctx, msg.APIKey)
}

type ListProjectAccountPairsQuery struct {
	reader AccountReader
}

func NewListProjectAccountPairsQuery(reader AccountReader) *ListProjectAccountPairsQuery {
	return &ListProjectAccountPairsQuery{reader: reader}
}

func (q *ListProjectAccountPairsQuery) Query(
	ctx context.Context,
	_ ListProjectAccountPairsMessage,
) ([]core.ProjectAccountPair, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: account reader is required")
	}
	return q.reader.ListProjectAccountPairs(ctx)
}

type GetResourceQuery struct {
	reader ResourceReader
}

func NewGetResourceQuery(reader ResourceReader) *GetResourceQuery {
	return &GetResourceQuery{reader: reader}
}

func (q *GetResourceQuery) Query(ctx context.Context, msg GetResourceMessage) (core.ResourceLease, error) {
	if q == nil || q.reader == nil {
		return core.ResourceLease{}, queryDependencyError("query: resource reader is required")
	}
	return q.reader.GetResource(ctx, msg.Request)
}

type ListResourcesQuery struct {
	reader ResourceReader
}

func NewListResourcesQuery(reader ResourceReader) *ListResourcesQuery {
	return &ListResourcesQuery{reader: reader}
}

func (q *ListResourcesQuery) Query(ctx context.Context, msg ListResourcesMessage) ([]core.ResourceLease, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: resource reader is required")
	}
	return q.reader.ListResources(ctx, msg.Request)
}

type StatusQuery struct {
	reader StatusReader
}

func NewStatusQuery(reader StatusReader) *StatusQuery {
	return &StatusQuery{reader: reader}
}

func (q *StatusQuery) Query(ctx context.Context, _ StatusMessage) (core.StatusReport, error) {
	if q == nil || q.reader == nil {
		return core.StatusReport{}, queryDependencyError("query: status reader is required")
	}
	return q.reader.Status(ctx), nil
}
