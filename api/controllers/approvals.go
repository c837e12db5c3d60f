package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/reviewhub-backend/api/responses"
	"github.com/angelmondragon/reviewhub-backend/api/validators"
	"github.com/angelmondragon/reviewhub-backend/internal/approvals"
	"github.com/angelmondragon/reviewhub-backend/internal/authz"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
	"github.com/angelmondragon/reviewhub-backend/pkg/logger"
)

type addStepRequest struct {
	RoleLabel     string     `json:"roleLabel" validate:"required,max=120"`
	AssigneeID    *uuid.UUID `json:"assigneeId"`
	AssigneeEmail *string    `json:"assigneeEmail" validate:"omitempty,email"`
}

type decideRequest struct {
	Status string  `json:"status" validate:"required,oneof=approved rejected changes_requested"`
	Note   *string `json:"note" validate:"omitempty,max=2000"`
}

type approvalList struct {
	State enums.ApprovalState   `json:"state"`
	Steps []models.ApprovalStep `json:"steps"`
}

// ListApprovals returns the steps together with the derived asset state.
func ListApprovals(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assetID, err := validators.URLParamUUID(r, "assetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		steps, err := svc.ListSteps(r.Context(), p, assetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := svc.State(r.Context(), p, assetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, approvalList{State: state, Steps: steps})
	}
}

func AddApprovalStep(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assetID, err := validators.URLParamUUID(r, "assetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body addStepRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		step, err := svc.AddStep(r.Context(), p, approvals.AddStepInput{
			AssetID:       assetID,
			RoleLabel:     body.RoleLabel,
			AssigneeID:    body.AssigneeID,
			AssigneeEmail: body.AssigneeEmail,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, step)
	}
}

func DecideApproval(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeDecision(w, r, svc, p, logg)
	}
}

func ResetApproval(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stepID, err := validators.URLParamUUID(r, "stepId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		step, err := svc.Reset(r.Context(), p, stepID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, step)
	}
}

// NotifyApproval emails the step's assignee a review request.
func NotifyApproval(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stepID, err := validators.URLParamUUID(r, "stepId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Notify(r.Context(), p, stepID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"notified": true})
	}
}

func DeleteApproval(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stepID, err := validators.URLParamUUID(r, "stepId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteStep(r.Context(), p, stepID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

func writeDecision(w http.ResponseWriter, r *http.Request, svc approvals.Service, p authz.Principal, logg *logger.Logger) {
	stepID, err := validators.URLParamUUID(r, "stepId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	var body decideRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	step, err := svc.Decide(r.Context(), p, approvals.DecideInput{
		StepID: stepID,
		Status: enums.ApprovalStatus(body.Status),
		Note:   body.Note,
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, step)
}
