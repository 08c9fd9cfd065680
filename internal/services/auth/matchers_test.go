package auth

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/fnsign/internal/common"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestFindLoginForm_Priority(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		wantID   string
		strategy string
	}{
		{
			name:     "id beats earlier forms",
			html:     `<form id="a" name="login"></form><form id="lsform"></form>`,
			wantID:   "lsform",
			strategy: "id",
		},
		{
			name:     "name",
			html:     `<form id="a" action="member.php?mod=logging"></form><form id="b" name="login"></form>`,
			wantID:   "b",
			strategy: "name",
		},
		{
			name:     "action",
			html:     `<form id="a" action="search.php"></form><form id="b" action="member.php?mod=logging&action=login"></form>`,
			wantID:   "b",
			strategy: "action",
		},
		{
			name:     "first form fallback",
			html:     `<form id="a" action="search.php"></form><form id="b"></form>`,
			wantID:   "a",
			strategy: "first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form, strategy := findLoginForm(mustDoc(t, tt.html))
			require.NotNil(t, form)
			assert.Equal(t, tt.wantID, form.AttrOr("id", ""))
			assert.Equal(t, tt.strategy, strategy)
		})
	}
}

func TestFindLoginForm_NoForms(t *testing.T) {
	form, _ := findLoginForm(mustDoc(t, `<div>maintenance</div>`))
	assert.Nil(t, form)
}

func TestParseLoginForm(t *testing.T) {
	site := common.SiteConfig{BaseURL: "https://club.fnnas.com/"}

	form, strategy, err := parseLoginForm(mustDoc(t, loginPage), site)
	require.NoError(t, err)
	assert.Equal(t, "id", strategy)
	assert.Equal(t, "loginform_LhAbc", form.FormID)
	assert.Equal(t, "LhAbc", form.LoginHash)
	assert.Equal(t, "member.php?mod=logging&action=login&loginsubmit=yes&loginhash=LhAbc", form.Action)
	assert.Equal(t, "f0rmh4sh", form.FormHash)
	assert.Equal(t, "username_LhAbc", form.UsernameID)
	assert.Equal(t, "password3_LhAbc", form.PasswordID)
	require.NotNil(t, form.Captcha)
	assert.Equal(t, "cSAxyz", form.Captcha.Hash)
	assert.Equal(t, "https://club.fnnas.com/misc.php?mod=seccode&update=123&idhash=cSAxyz", form.Captcha.ImageURL)
}

func TestParseLoginForm_Errors(t *testing.T) {
	site := common.SiteConfig{BaseURL: "https://club.fnnas.com/"}

	tests := []struct {
		name string
		html string
	}{
		{"no form", `<div></div>`},
		{"no formhash", `<form id="loginform_x"><input name="username"></form>`},
		{"captcha without image", `<form id="loginform_x"><input name="formhash" value="h"><input name="seccodeverify" id="seccodeverify_q"></form>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseLoginForm(mustDoc(t, tt.html), site)
			assert.ErrorIs(t, err, common.ErrMalformedResponse)
		})
	}
}

func TestParseLoginForm_NoCaptcha(t *testing.T) {
	site := common.SiteConfig{BaseURL: "https://club.fnnas.com/"}
	html := `<form id="lsform" action="member.php?mod=logging&action=login"><input name="formhash" value="h"><input name="username"><input name="password"></form>`

	form, _, err := parseLoginForm(mustDoc(t, html), site)
	require.NoError(t, err)
	assert.Nil(t, form.Captcha)
	assert.Empty(t, form.LoginHash)
	assert.Empty(t, form.UsernameID)
}

func TestClassifyLoginResponse(t *testing.T) {
	tests := []struct {
		body string
		want loginOutcome
	}{
		{"抱歉，验证码错误，请重新填写", outcomeCaptchaRejected},
		{"验证码不正确", outcomeCaptchaRejected},
		{"请输入验证码", outcomeUndetermined},
		{"登录失败，您还可以尝试 4 次", outcomeCredentialsRejected},
		{"密码错误", outcomeCredentialsRejected},
		{"用户名不存在", outcomeCredentialsRejected},
		{"succeedhandle_LhAbc('index.php')", outcomeSucceeded},
		{"欢迎您回来，alice", outcomeSucceeded},
		{"<html></html>", outcomeUndetermined},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyLoginResponse(tt.body))
		})
	}
}

func TestLoggedIn(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"logout link", `<a href="member.php?mod=logging&action=logout&formhash=1">退出</a>`, true},
		{"profile without login link", `<a href="home.php?mod=space&uid=1">me</a>`, true},
		{"profile and login link", `<a href="home.php?mod=space&uid=2">x</a><a href="member.php?mod=logging&action=login">登录</a>`, false},
		{"profile, login link and username", `<a href="home.php?mod=space&uid=1">alice</a><a href="member.php?mod=logging&action=login">登录</a>`, true},
		{"login link only", `<a href="member.php?mod=logging&action=login">登录</a>`, false},
		{"nothing", `<p>hi</p>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, loggedIn(mustDoc(t, tt.html), tt.html, "alice"))
		})
	}
}
