package command

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-provisioning/core"
)

func TestCreateAccountMessage_ValidateReturnsRichError(t *testing.T) {
	err := (CreateAccountMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.ProvisioningErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.ProvisioningErrorBadInput, rich.TextCode)
	}
}

func TestCreateProjectMessage_InvalidNameWrapsCoreError(t *testing.T) {
	err := (CreateProjectMessage{Request: core.ProjectRequest{APIKey: testAPIKey, ProjectName: "-bad"}}).Validate()
	if !errors.Is(err, core.ErrInvalidProjectName) {
		t.Fatalf("expected wrapped project name error, got %v", err)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ProvisioningErrorBadInput {
		t.Fatalf("expected bad input envelope, got %#v", rich)
	}
}

func TestCreateAccountCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *CreateAccountCommand
	err := cmd.Execute(context.Background(), CreateAccountMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
