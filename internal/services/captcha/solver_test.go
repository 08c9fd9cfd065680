package captcha

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
)

type mockRecognizer struct {
	mock.Mock
}

func (m *mockRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	args := m.Called(ctx, image)
	return args.String(0), args.Error(1)
}

var noDelay = common.RetryPolicy{MaxAttempts: 3}

func newImageServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(status)
		_, _ = w.Write([]byte("png-bytes"))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"A B-C3", "ABC3"},
		{" 7k q9 ", "7kq9"},
		{"x_y.z", "x_yz"},
		{"验证 码!", "验证码"},
		{"--  ..", ""},
		{"e\u0301 x", "e\u0301x"},
		{"a\u203fb c", "a\u203fbc"},
		{"१२ ३", "१२३"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestSolve_Success(t *testing.T) {
	server := newImageServer(t, http.StatusOK)
	recognizer := &mockRecognizer{}
	recognizer.On("Recognize", mock.Anything, []byte("png-bytes")).Return("7k q9", nil).Once()

	solver := NewSolver(server.Client(), recognizer, noDelay, arbor.NewLogger())

	text, err := solver.Solve(context.Background(), server.URL+"/misc.php?mod=seccode&update=1")
	require.NoError(t, err)
	assert.Equal(t, "7kq9", text)
	recognizer.AssertExpectations(t)
}

func TestSolve_RetriesThenSucceeds(t *testing.T) {
	server := newImageServer(t, http.StatusOK)
	recognizer := &mockRecognizer{}
	recognizer.On("Recognize", mock.Anything, mock.Anything).Return("", errors.New("ocr down")).Once()
	recognizer.On("Recognize", mock.Anything, mock.Anything).Return("ab12", nil).Once()

	solver := NewSolver(server.Client(), recognizer, noDelay, arbor.NewLogger())

	text, err := solver.Solve(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ab12", text)
	recognizer.AssertNumberOfCalls(t, "Recognize", 2)
}

func TestSolve_ImageUnavailable(t *testing.T) {
	server := newImageServer(t, http.StatusNotFound)
	recognizer := &mockRecognizer{}

	solver := NewSolver(server.Client(), recognizer, noDelay, arbor.NewLogger())

	_, err := solver.Solve(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCaptchaUnavailable))
	recognizer.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything)
}

func TestSolve_EmptyAfterNormalization(t *testing.T) {
	server := newImageServer(t, http.StatusOK)
	recognizer := &mockRecognizer{}
	recognizer.On("Recognize", mock.Anything, mock.Anything).Return(" - ", nil)

	solver := NewSolver(server.Client(), recognizer, noDelay, arbor.NewLogger())

	_, err := solver.Solve(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCaptchaUnavailable))
	recognizer.AssertNumberOfCalls(t, "Recognize", 3)
}
