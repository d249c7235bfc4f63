package httptransport

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	gocmd "github.com/goliatone/go-command"

	provcommand "github.com/goliatone/go-provisioning/command"
	"github.com/goliatone/go-provisioning/core"
	provquery "github.com/goliatone/go-provisioning/query"
)

type validator interface {
	Validate() error
}

func validate(msg any) error {
	if v, ok := msg.(validator); ok {
		return v.Validate()
	}
	return nil
}

// execute validates msg, runs it through cmd and returns the collected
// result. ok is false when the command stored nothing.
func execute[M any, T any](ctx context.Context, cmd gocmd.Commander[M], msg M) (T, bool, error) {
	var zero T
	if err := validate(msg); err != nil {
		return zero, false, err
	}
	collector := gocmd.NewResult[T]()
	err := cmd.Execute(gocmd.ContextWithResult(ctx, collector), msg)
	value, ok := collector.Load()
	return value, ok, err
}

func query[M any, T any](ctx context.Context, q gocmd.Querier[M, T], msg M) (T, error) {
	if err := validate(msg); err != nil {
		var zero T
		return zero, err
	}
	return q.Query(ctx, msg)
}

func (s *Server) createAccount(c *gin.Context) {
	var body createAccountBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, badRequestError(err, "invalid account body"))
		return
	}
	msg := provcommand.CreateAccountMessage{Request: core.CreateAccountRequest{APIKey: apiKeyFrom(c), Name: body.Name}}
	account, _, err := execute[provcommand.CreateAccountMessage, core.Account](
		c.Request.Context(), s.facade.Commands().CreateAccount, msg,
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAccountResponse(account))
}

func (s *Server) getAccount(c *gin.Context) {
	account, err := query[provquery.GetAccountMessage, core.Account](
		c.Request.Context(), s.facade.Queries().GetAccount, provquery.GetAccountMessage{APIKey: apiKeyFrom(c)},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(account))
}

func (s *Server) deleteAccount(c *gin.Context) {
	_, _, err := execute[provcommand.DeleteAccountMessage, struct{}](
		c.Request.Context(), s.facade.Commands().DeleteAccount, provcommand.DeleteAccountMessage{APIKey: apiKeyFrom(c)},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listProjects(c *gin.Context) {
	projects, err := query[provquery.ListProjectsMessage, []core.ProjectRef](
		c.Request.Context(), s.facade.Queries().ListProjects, provquery.ListProjectsMessage{APIKey: apiKeyFrom(c)},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": toProjectResponses(projects)})
}

func (s *Server) createProject(c *gin.Context) {
	msg := provcommand.CreateProjectMessage{Request: projectRequest(c)}
	project, _, err := execute[provcommand.CreateProjectMessage, core.ProjectRef](
		c.Request.Context(), s.facade.Commands().CreateProject, msg,
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProjectResponse(project))
}

func (s *Server) deleteProject(c *gin.Context) {
	msg := provcommand.DeleteProjectMessage{Request: projectRequest(c)}
	_, _, err := execute[provcommand.DeleteProjectMessage, struct{}](
		c.Request.Context(), s.facade.Commands().DeleteProject, msg,
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listResources(c *gin.Context) {
	leases, err := query[provquery.ListResourcesMessage, []core.ResourceLease](
		c.Request.Context(), s.facade.Queries().ListResources, provquery.ListResourcesMessage{Request: projectRequest(c)},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	// Listings mask secrets; the single-resource routes return them in full.
	out := make([]leaseResponse, 0, len(leases))
	for _, lease := range leases {
		out = append(out, toLeaseResponse(lease.Redacted()))
	}
	c.JSON(http.StatusOK, gin.H{"resources": out})
}

func (s *Server) provisionResource(c *gin.Context) {
	msg := provcommand.ProvisionResourceMessage{Request: resourceRequest(c)}
	lease, ok, err := execute[provcommand.ProvisionResourceMessage, core.ResourceLease](
		c.Request.Context(), s.facade.Commands().ProvisionResource, msg,
	)
	s.writeLease(c, lease, ok, err, http.StatusCreated)
}

func (s *Server) retryResource(c *gin.Context) {
	msg := provcommand.RetryResourceMessage{Request: resourceRequest(c)}
	lease, ok, err := execute[provcommand.RetryResourceMessage, core.ResourceLease](
		c.Request.Context(), s.facade.Commands().RetryResource, msg,
	)
	s.writeLease(c, lease, ok, err, http.StatusOK)
}

func (s *Server) deprovisionResource(c *gin.Context) {
	msg := provcommand.DeprovisionResourceMessage{Request: resourceRequest(c)}
	lease, ok, err := execute[provcommand.DeprovisionResourceMessage, core.ResourceLease](
		c.Request.Context(), s.facade.Commands().DeprovisionResource, msg,
	)
	s.writeLease(c, lease, ok, err, http.StatusOK)
}

func (s *Server) getResource(c *gin.Context) {
	lease, err := query[provquery.GetResourceMessage, core.ResourceLease](
		c.Request.Context(), s.facade.Queries().GetResource, provquery.GetResourceMessage{Request: resourceRequest(c)},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLeaseResponse(lease))
}

// writeLease renders failed resource operations with the error status and
// the recorded lease, credentials redacted, so clients can see the failed
// state and retry.
func (s *Server) writeLease(c *gin.Context, lease core.ResourceLease, ok bool, err error, status int) {
	if err == nil {
		c.JSON(status, toLeaseResponse(lease))
		return
	}
	status, body := errorResponse(err)
	if ok {
		recorded := toLeaseResponse(lease.Redacted())
		body.Lease = &recorded
		s.logger.Warn("resource operation failed",
			"lease_id", lease.ID,
			"lease_status", string(lease.Status),
			"error", err.Error(),
		)
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *Server) listProjectAccountPairs(c *gin.Context) {
	pairs, err := query[provquery.ListProjectAccountPairsMessage, []core.ProjectAccountPair](
		c.Request.Context(), s.facade.Queries().ListProjectAccountPairs, provquery.ListProjectAccountPairsMessage{},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]pairResponse, 0, len(pairs))
	for _, pair := range pairs {
		out = append(out, pairResponse{Project: pair.ProjectName, Account: pair.AccountName})
	}
	c.JSON(http.StatusOK, gin.H{"pairs": out})
}

func (s *Server) status(c *gin.Context) {
	report, err := query[provquery.StatusMessage, core.StatusReport](
		c.Request.Context(), s.facade.Queries().Status, provquery.StatusMessage{},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	code := http.StatusOK
	if report.Status == core.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, toStatusResponse(report))
}

func projectRequest(c *gin.Context) core.ProjectRequest {
	return core.ProjectRequest{APIKey: apiKeyFrom(c), ProjectName: c.Param("project")}
}

func resourceRequest(c *gin.Context) core.ResourceRequest {
	return core.ResourceRequest{
		APIKey:      apiKeyFrom(c),
		ProjectName: c.Param("project"),
		StoreType:   core.NormalizeStoreType(c.Param("store")),
	}
}
