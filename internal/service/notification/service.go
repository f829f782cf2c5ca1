// Package notification emails the people affected by grant lifecycle
// changes. Everything here is best-effort: a mail failure is logged and
// dropped, never propagated back into the transition that caused it.
//
// Subject lines and bodies deliberately avoid patient names and other
// clinical detail; recipients follow the link into the app for specifics.
package notification

import (
	"context"
	"fmt"

	"github.com/hitpixel/pillflow-api/internal/email"
	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/repository"
	"github.com/hitpixel/pillflow-api/pkg/logger"
)

type Service struct {
	sender email.Sender
	orgs   repository.OrganizationRepository
	logger *logger.Logger
}

func NewService(sender email.Sender, orgs repository.OrganizationRepository, log *logger.Logger) *Service {
	return &Service{sender: sender, orgs: orgs, logger: log}
}

// GrantRequested mails every owner and admin of the patient's organization
// so someone can act on the pending request.
func (s *Service) GrantRequested(ctx context.Context, patient *model.Patient, grant *model.TokenAccessGrant) {
	admins, err := s.orgs.ListAdmins(ctx, patient.OrganizationID)
	if err != nil {
		s.logDrop(err, "failed to list approvers", grant)
		return
	}

	subject := "New access request awaiting review"
	body := fmt.Sprintf(
		"<p>An access request for one of your patients is awaiting review.</p><p>Request reference: %s</p>",
		grant.ID,
	)
	for _, admin := range admins {
		if err := s.sender.Send(admin.Email, subject, body); err != nil {
			s.logDrop(err, "failed to send request notification", grant)
		}
	}
}

func (s *Service) GrantApproved(ctx context.Context, grant *model.TokenAccessGrant) {
	s.notifyGrantee(ctx, grant, "Access request approved",
		"<p>Your access request has been approved.</p>")
}

func (s *Service) GrantDenied(ctx context.Context, grant *model.TokenAccessGrant) {
	s.notifyGrantee(ctx, grant, "Access request denied",
		"<p>Your access request has been denied.</p>")
}

func (s *Service) GrantRevoked(ctx context.Context, grant *model.TokenAccessGrant) {
	s.notifyGrantee(ctx, grant, "Access revoked",
		"<p>Your access to a shared patient record has been revoked.</p>")
}

func (s *Service) notifyGrantee(ctx context.Context, grant *model.TokenAccessGrant, subject, body string) {
	grantee, err := s.orgs.GetMember(ctx, grant.GranteeUserID)
	if err != nil {
		s.logDrop(err, "failed to resolve grantee", grant)
		return
	}
	if err := s.sender.Send(grantee.Email, subject, body); err != nil {
		s.logDrop(err, "failed to send grant notification", grant)
	}
}

func (s *Service) logDrop(err error, msg string, grant *model.TokenAccessGrant) {
	if s.logger != nil {
		s.logger.Warn(msg, "error", err.Error(), "grant_id", grant.ID.String())
	}
}
