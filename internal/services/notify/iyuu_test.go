package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
)

func TestNotify_Success(t *testing.T) {
	var gotPath, gotText, gotDesp, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		gotText = r.PostForm.Get("text")
		gotDesp = r.PostForm.Get("desp")
		fmt.Fprint(w, `{"errcode":0,"errmsg":"ok"}`)
	}))
	defer server.Close()

	notifier := NewIYUUNotifier(common.NotifyConfig{Endpoint: server.URL + "/", IYUUToken: "IYUU123T"}, arbor.NewLogger())

	err := notifier.Notify(context.Background(), "FN论坛签到成功", "签到成功！\n\n签到信息：\n连续打卡: 5天")
	require.NoError(t, err)
	assert.Equal(t, "/IYUU123T.send", gotPath)
	assert.Equal(t, "FN论坛签到成功", gotText)
	assert.Equal(t, "签到成功！\n\n签到信息：\n连续打卡: 5天", gotDesp)
	assert.Contains(t, gotContentType, "application/x-www-form-urlencoded")
}

func TestNotify_ErrCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errcode":404,"errmsg":"token invalid"}`)
	}))
	defer server.Close()

	notifier := NewIYUUNotifier(common.NotifyConfig{Endpoint: server.URL, IYUUToken: "IYUU123T"}, arbor.NewLogger())

	err := notifier.Notify(context.Background(), "t", "b")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.Code)
	assert.Equal(t, "token invalid", apiErr.Message)
}

func TestNotify_HTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	notifier := NewIYUUNotifier(common.NotifyConfig{Endpoint: server.URL, IYUUToken: "IYUU123T"}, arbor.NewLogger())

	err := notifier.Notify(context.Background(), "t", "b")
	assert.True(t, errors.Is(err, common.ErrTransientNetwork))
}

func TestNotify_MissingToken(t *testing.T) {
	for _, token := range []string{"", "your_iyuu_token"} {
		notifier := NewIYUUNotifier(common.NotifyConfig{Endpoint: "http://127.0.0.1:0", IYUUToken: token}, arbor.NewLogger())

		err := notifier.Notify(context.Background(), "t", "b")
		assert.True(t, errors.Is(err, common.ErrConfiguration), "token %q", token)
	}
}

func TestNotify_RequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	notifier := NewIYUUNotifier(common.NotifyConfig{Endpoint: server.URL, IYUUToken: "IYUU123T", RequestTimeout: "50ms"}, arbor.NewLogger())

	err := notifier.Notify(context.Background(), "t", "b")
	assert.ErrorIs(t, err, common.ErrTransientNetwork)
}
