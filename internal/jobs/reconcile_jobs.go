package jobs

import (
	"context"
	"fmt"

	"membership-backend/internal/logger"
)

// ReconcileRoster looks for approvals that created a member but left the
// request pending, and for pool entries still held by a member. Findings are
// repaired when scheduler.repair is set.
func (jr *JobRunner) ReconcileRoster() error {
	return jr.runWithRecovery("ReconcileRoster", func(ctx context.Context) error {
		repair := jr.config.Scheduler.Repair
		report, err := jr.admin.Reconcile(ctx, repair)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		if report.Clean() {
			logger.InfoContext(ctx, "Roster is consistent")
			return nil
		}
		for _, st := range report.StrandedApprovals {
			logger.WarnContext(ctx, "Stranded approval",
				"request_id", st.RequestID,
				"student_number", st.StudentNumber,
				"member_id", st.MemberID,
				"control_number", st.ControlNumber,
				"repaired", report.Repaired,
			)
		}
		for _, n := range report.PoolConflicts {
			logger.WarnContext(ctx, "Recycled number held by a member", "control_number", n, "repaired", report.Repaired)
		}
		return nil
	})
}

// VerifyStore checks that the realtime database answers.
func (jr *JobRunner) VerifyStore() error {
	return jr.runWithRecovery("VerifyStore", func(ctx context.Context) error {
		if err := jr.store.Ping(ctx); err != nil {
			return fmt.Errorf("store unreachable: %w", err)
		}
		return nil
	})
}
