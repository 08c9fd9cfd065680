package runner

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/models"
)

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) EnsureSession(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockAuth) Login(ctx context.Context) error         { return m.Called(ctx).Error(0) }
func (m *mockAuth) IsLoggedIn(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}
func (m *mockAuth) GetHTTPClient() *http.Client { return http.DefaultClient }

type mockCheckin struct {
	mock.Mock
}

func (m *mockCheckin) QueryStatus(ctx context.Context) (*models.SignStatus, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(*models.SignStatus)
	return status, args.Error(1)
}

func (m *mockCheckin) PerformAction(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockCheckin) FetchSummary(ctx context.Context) models.SignSummary {
	return m.Called(ctx).Get(0).(models.SignSummary)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, title, body string) error {
	return m.Called(ctx, title, body).Error(0)
}

var summary = models.SignSummary{
	{Label: "最近打卡", Value: "2025-06-01 08:00"},
	{Label: "连续打卡", Value: "5天"},
}

func newRunner(auth *mockAuth, checkin *mockCheckin, notifier *mockNotifier, options Options) *Runner {
	return NewRunner(auth, checkin, notifier, options, arbor.NewLogger())
}

func TestRun_PendingPerformsAction(t *testing.T) {
	auth, checkin, notifier := &mockAuth{}, &mockCheckin{}, &mockNotifier{}
	auth.On("EnsureSession", mock.Anything).Return(nil)
	checkin.On("QueryStatus", mock.Anything).Return(&models.SignStatus{State: models.SignStatePending, Label: "点击打卡", Token: "abc"}, nil)
	checkin.On("PerformAction", mock.Anything, "abc").Return(nil)
	checkin.On("FetchSummary", mock.Anything).Return(summary)
	notifier.On("Notify", mock.Anything, TitleSuccess, "签到成功！\n\n签到信息：\n最近打卡: 2025-06-01 08:00\n连续打卡: 5天").Return(nil).Once()

	result := newRunner(auth, checkin, notifier, Options{Notify: true}).Run(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, OutcomeSignedIn, result.Outcome)
	assert.True(t, result.Notified)
	notifier.AssertExpectations(t)
	checkin.AssertExpectations(t)
}

func TestRun_CompletedSkipsAction(t *testing.T) {
	auth, checkin, notifier := &mockAuth{}, &mockCheckin{}, &mockNotifier{}
	auth.On("EnsureSession", mock.Anything).Return(nil)
	checkin.On("QueryStatus", mock.Anything).Return(&models.SignStatus{State: models.SignStateCompleted, Label: "今日已打卡"}, nil)
	checkin.On("FetchSummary", mock.Anything).Return(models.SignSummary{})
	notifier.On("Notify", mock.Anything, TitleAlreadyDone, "今日已签到，无需重复签到。\n\n签到信息：\n暂无详细信息").Return(nil).Once()

	result := newRunner(auth, checkin, notifier, Options{Notify: true}).Run(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, OutcomeAlreadyDone, result.Outcome)
	checkin.AssertNotCalled(t, "PerformAction", mock.Anything, mock.Anything)
	notifier.AssertExpectations(t)
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(auth *mockAuth, checkin *mockCheckin)
		outcome Outcome
		title   string
		message string
	}{
		{
			name: "credentials rejected",
			setup: func(auth *mockAuth, checkin *mockCheckin) {
				auth.On("EnsureSession", mock.Anything).Return(fmt.Errorf("login failed: %w", &common.AuthenticationError{Kind: common.AuthFailureCredentials}))
			},
			outcome: OutcomeLoginFailed,
			title:   TitleFailure,
			message: "登录失败，账号或密码错误，请检查账号配置",
		},
		{
			name: "captcha unavailable",
			setup: func(auth *mockAuth, checkin *mockCheckin) {
				auth.On("EnsureSession", mock.Anything).Return(fmt.Errorf("login failed: %w", common.ErrCaptchaUnavailable))
			},
			outcome: OutcomeLoginFailed,
			title:   TitleFailure,
			message: "登录失败，验证码识别失败，请检查OCR配置或稍后重试",
		},
		{
			name: "status unavailable",
			setup: func(auth *mockAuth, checkin *mockCheckin) {
				auth.On("EnsureSession", mock.Anything).Return(nil)
				checkin.On("QueryStatus", mock.Anything).Return(nil, common.ErrMalformedResponse)
			},
			outcome: OutcomeStatusFailed,
			title:   TitleFailure,
			message: "获取签到状态失败，请检查网络连接",
		},
		{
			name: "action diverged",
			setup: func(auth *mockAuth, checkin *mockCheckin) {
				auth.On("EnsureSession", mock.Anything).Return(nil)
				checkin.On("QueryStatus", mock.Anything).Return(&models.SignStatus{State: models.SignStatePending, Token: "abc"}, nil)
				checkin.On("PerformAction", mock.Anything, "abc").Return(common.ErrStateDivergence)
			},
			outcome: OutcomeActionFailed,
			title:   TitleFailure,
			message: "签到操作失败，请检查网络连接或稍后重试",
		},
		{
			name: "unknown state",
			setup: func(auth *mockAuth, checkin *mockCheckin) {
				auth.On("EnsureSession", mock.Anything).Return(nil)
				checkin.On("QueryStatus", mock.Anything).Return(&models.SignStatus{State: models.SignStateUnknown, Label: "活动已结束"}, nil)
			},
			outcome: OutcomeUnknownState,
			title:   TitleUnknown,
			message: "遇到未知的签到状态: 活动已结束，请手动检查",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, checkin, notifier := &mockAuth{}, &mockCheckin{}, &mockNotifier{}
			tt.setup(auth, checkin)
			notifier.On("Notify", mock.Anything, tt.title, tt.message).Return(nil).Once()

			result := newRunner(auth, checkin, notifier, Options{Notify: true}).Run(context.Background())

			assert.False(t, result.Success)
			assert.Equal(t, tt.outcome, result.Outcome)
			assert.Error(t, result.Err)
			notifier.AssertExpectations(t)
			notifier.AssertNumberOfCalls(t, "Notify", 1)
		})
	}
}

func TestRun_NotificationNotConfiguredDoesNotFailRun(t *testing.T) {
	auth, checkin, notifier := &mockAuth{}, &mockCheckin{}, &mockNotifier{}
	auth.On("EnsureSession", mock.Anything).Return(nil)
	checkin.On("QueryStatus", mock.Anything).Return(&models.SignStatus{State: models.SignStateCompleted}, nil)
	checkin.On("FetchSummary", mock.Anything).Return(summary)
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(fmt.Errorf("%w: no token", common.ErrConfiguration)).Once()

	result := newRunner(auth, checkin, notifier, Options{Notify: true}).Run(context.Background())

	assert.True(t, result.Success)
	assert.False(t, result.Notified)
}

func TestRun_CheckOnly(t *testing.T) {
	auth, checkin, notifier := &mockAuth{}, &mockCheckin{}, &mockNotifier{}
	auth.On("EnsureSession", mock.Anything).Return(nil)
	checkin.On("QueryStatus", mock.Anything).Return(&models.SignStatus{State: models.SignStatePending, Token: "abc"}, nil)

	result := newRunner(auth, checkin, notifier, Options{CheckOnly: true, Notify: true}).Run(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, OutcomeChecked, result.Outcome)
	assert.Equal(t, models.SignStatePending, result.Status.State)
	checkin.AssertNotCalled(t, "PerformAction", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_NotifyDisabled(t *testing.T) {
	auth, checkin, notifier := &mockAuth{}, &mockCheckin{}, &mockNotifier{}
	auth.On("EnsureSession", mock.Anything).Return(fmt.Errorf("login failed: %w", common.ErrTransientNetwork))

	result := newRunner(auth, checkin, notifier, Options{}).Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, "登录失败，请检查账号密码或网络连接", result.Message)
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_CancelledSendsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	auth, checkin, notifier := &mockAuth{}, &mockCheckin{}, &mockNotifier{}
	auth.On("EnsureSession", mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(context.Canceled)

	result := newRunner(auth, checkin, notifier, Options{Notify: true}).Run(ctx)

	assert.Equal(t, OutcomeCancelled, result.Outcome)
	assert.ErrorIs(t, result.Err, context.Canceled)
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}
