// Package runner sequences one check-in run: session, status, action, summary
// and a single notification describing the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/interfaces"
	"github.com/ternarybob/fnsign/internal/models"
)

// Notification titles
const (
	TitleSuccess     = "FN论坛签到成功"
	TitleAlreadyDone = "FN论坛签到提醒"
	TitleFailure     = "FN论坛签到失败"
	TitleUnknown     = "FN论坛签到异常"
)

const noSummary = "暂无详细信息"

// Outcome names how a run ended
type Outcome string

const (
	OutcomeSignedIn     Outcome = "signed_in"
	OutcomeAlreadyDone  Outcome = "already_done"
	OutcomeChecked      Outcome = "checked"
	OutcomeLoginFailed  Outcome = "login_failed"
	OutcomeStatusFailed Outcome = "status_failed"
	OutcomeActionFailed Outcome = "action_failed"
	OutcomeUnknownState Outcome = "unknown_state"
	OutcomeCancelled    Outcome = "cancelled"
)

// Result is the outcome of one run
type Result struct {
	Success  bool
	Outcome  Outcome
	Title    string
	Message  string
	Status   *models.SignStatus
	Summary  models.SignSummary
	Notified bool
	Err      error
}

// Options alter a run
type Options struct {
	// CheckOnly probes the status without acting or notifying
	CheckOnly bool
	// Notify enables the outcome notification
	Notify bool
}

// Runner drives a single check-in run
type Runner struct {
	auth     interfaces.SessionAuthenticator
	checkin  interfaces.CheckinService
	notifier interfaces.Notifier
	options  Options
	logger   arbor.ILogger
}

// NewRunner creates a runner
func NewRunner(
	auth interfaces.SessionAuthenticator,
	checkin interfaces.CheckinService,
	notifier interfaces.Notifier,
	options Options,
	logger arbor.ILogger,
) *Runner {
	return &Runner{
		auth:     auth,
		checkin:  checkin,
		notifier: notifier,
		options:  options,
		logger:   logger,
	}
}

// Run executes the run and sends at most one notification
func (r *Runner) Run(ctx context.Context) Result {
	r.logger.Info().Bool("check_only", r.options.CheckOnly).Msg("Check-in run started")

	result := r.execute(ctx)

	if ctx.Err() != nil {
		result = Result{Outcome: OutcomeCancelled, Err: ctx.Err(), Status: result.Status}
		r.logger.Warn().Msg("Run cancelled, no notification sent")
		return result
	}

	if result.Success {
		r.logger.Info().Str("outcome", string(result.Outcome)).Msg("Check-in run succeeded")
	} else {
		r.logger.Error().Str("outcome", string(result.Outcome)).Err(result.Err).Msg("Check-in run failed")
	}

	if result.Title != "" && r.options.Notify && !r.options.CheckOnly {
		result.Notified = r.notify(ctx, result.Title, result.Message)
	}
	return result
}

func (r *Runner) execute(ctx context.Context) Result {
	if err := r.auth.EnsureSession(ctx); err != nil {
		return failure(OutcomeLoginFailed, TitleFailure, loginFailureMessage(err), err)
	}

	status, err := r.checkin.QueryStatus(ctx)
	if err != nil {
		return failure(OutcomeStatusFailed, TitleFailure, "获取签到状态失败，请检查网络连接", err)
	}

	if r.options.CheckOnly {
		return Result{Success: status.State != models.SignStateUnknown, Outcome: OutcomeChecked, Status: status}
	}

	switch status.State {
	case models.SignStatePending:
		r.logger.Info().Msg("Check-in pending, submitting")
		if err := r.checkin.PerformAction(ctx, status.Token); err != nil {
			result := failure(OutcomeActionFailed, TitleFailure, "签到操作失败，请检查网络连接或稍后重试", err)
			result.Status = status
			return result
		}
		summary := r.checkin.FetchSummary(ctx)
		return Result{
			Success: true,
			Outcome: OutcomeSignedIn,
			Title:   TitleSuccess,
			Message: "签到成功！\n\n签到信息：\n" + summaryText(summary),
			Status:  status,
			Summary: summary,
		}

	case models.SignStateCompleted:
		r.logger.Info().Msg("Already checked in today")
		summary := r.checkin.FetchSummary(ctx)
		return Result{
			Success: true,
			Outcome: OutcomeAlreadyDone,
			Title:   TitleAlreadyDone,
			Message: "今日已签到，无需重复签到。\n\n签到信息：\n" + summaryText(summary),
			Status:  status,
			Summary: summary,
		}

	default:
		result := failure(OutcomeUnknownState, TitleUnknown,
			fmt.Sprintf("遇到未知的签到状态: %s，请手动检查", status.Label),
			fmt.Errorf("unrecognized check-in label %q", status.Label))
		result.Status = status
		return result
	}
}

func (r *Runner) notify(ctx context.Context, title, message string) bool {
	err := r.notifier.Notify(ctx, title, message)
	switch {
	case err == nil:
		return true
	case errors.Is(err, common.ErrConfiguration):
		r.logger.Warn().Err(err).Msg("Notification not configured, skipping")
	default:
		r.logger.Error().Err(err).Msg("Failed to send notification")
	}
	return false
}

func failure(outcome Outcome, title, message string, err error) Result {
	return Result{Outcome: outcome, Title: title, Message: message, Err: err}
}

// loginFailureMessage names the suspected cause of a failed login
func loginFailureMessage(err error) string {
	var authErr *common.AuthenticationError
	switch {
	case errors.As(err, &authErr) && authErr.Kind == common.AuthFailureCredentials:
		return "登录失败，账号或密码错误，请检查账号配置"
	case errors.Is(err, common.ErrCaptchaUnavailable):
		return "登录失败，验证码识别失败，请检查OCR配置或稍后重试"
	case errors.Is(err, common.ErrConfiguration):
		return "登录失败，配置缺失，请检查环境变量"
	default:
		return "登录失败，请检查账号密码或网络连接"
	}
}

func summaryText(summary models.SignSummary) string {
	text := strings.TrimSpace(summary.Lines())
	if text == "" {
		return noSummary
	}
	return text
}
