package crisis

import (
	"context"
	"errors"

	pkgerrors "CrisisDesk/pkg/errors"
)

type auditedAssessor struct {
	next    Assessor
	auditor Auditor
}

// WithAudit 在评估入口外层记录审计，审计内容不包含症状与触发事件原文
func WithAudit(next Assessor, auditor Auditor) Assessor {
	if auditor == nil {
		return next
	}
	return &auditedAssessor{next: next, auditor: auditor}
}

func (a *auditedAssessor) Resources() ResourceSet {
	return a.next.Resources()
}

func (a *auditedAssessor) Assess(ctx context.Context, req Request) (*Response, error) {
	resp, err := a.next.Assess(ctx, req)

	entry := AuditEntry{
		Action: AuditActionAssess,
		Entity: AuditEntityRecord,
		UserID: req.UserID,
		Details: map[string]any{
			"anonymous": req.UserID == "",
		},
	}
	if resp != nil {
		entry.EntityID = resp.InterventionID
		if resp.Severity != "" {
			entry.Details["severity"] = resp.Severity.String()
			// 审计表按数值排序筛选高风险评估
			entry.Details["severityRank"] = resp.Severity.Rank()
		}
		if resp.AlertsSent != nil {
			entry.Details["alertsSent"] = *resp.AlertsSent
		}
		if resp.EmergencyDispatch != nil {
			entry.Details["emergencyDispatch"] = *resp.EmergencyDispatch
		}
		if resp.RateLimited {
			entry.Details["rateLimited"] = true
		}
	}

	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			entry.Details["invalidFields"] = len(ve.Details)
		}
		if def, ok := pkgerrors.As(err); ok {
			entry.Details["code"] = def.Code
		}
		a.auditor.LogError(ctx, entry, err)
		return resp, err
	}

	a.auditor.LogSuccess(ctx, entry)
	return resp, nil
}
