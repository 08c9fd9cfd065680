package auth

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/models"
)

const (
	loginLinkSelector   = `a[href*="member.php?mod=logging&action=login"]`
	logoutLinkSelector  = `a[href*="member.php?mod=logging&action=logout"]`
	profileLinkSelector = `a[href*="home.php?mod=space"]`
	captchaImgSelector  = `img[src*="misc.php?mod=seccode"]`
)

// formMatcher is one strategy for spotting the login form
type formMatcher struct {
	name  string
	match func(form *goquery.Selection) bool
}

// loginFormMatchers are tried in order; the first strategy that matches any form wins
var loginFormMatchers = []formMatcher{
	{
		name: "id",
		match: func(form *goquery.Selection) bool {
			id := form.AttrOr("id", "")
			return strings.Contains(id, "loginform") || strings.Contains(id, "lsform")
		},
	},
	{
		name: "name",
		match: func(form *goquery.Selection) bool {
			return form.AttrOr("name", "") == "login"
		},
	},
	{
		name: "action",
		match: func(form *goquery.Selection) bool {
			return strings.Contains(form.AttrOr("action", ""), "logging")
		},
	},
	{
		name:  "first",
		match: func(form *goquery.Selection) bool { return true },
	},
}

// findLoginForm returns the login form and the name of the strategy that found it
func findLoginForm(doc *goquery.Document) (*goquery.Selection, string) {
	forms := doc.Find("form")
	if forms.Length() == 0 {
		return nil, ""
	}

	for _, matcher := range loginFormMatchers {
		found := forms.FilterFunction(func(_ int, form *goquery.Selection) bool {
			return matcher.match(form)
		}).First()
		if found.Length() > 0 {
			return found, matcher.name
		}
	}
	return nil, ""
}

// parseLoginForm extracts everything a login submission needs from the login page
func parseLoginForm(doc *goquery.Document, site common.SiteConfig) (*models.LoginForm, string, error) {
	form, strategy := findLoginForm(doc)
	if form == nil {
		return nil, "", fmt.Errorf("%w: login form not found", common.ErrMalformedResponse)
	}

	formHash, ok := doc.Find(`input[name="formhash"]`).First().Attr("value")
	if !ok || formHash == "" {
		return nil, strategy, fmt.Errorf("%w: formhash not found on login page", common.ErrMalformedResponse)
	}

	formID := form.AttrOr("id", "")
	result := &models.LoginForm{
		FormID:     formID,
		Action:     strings.TrimSpace(form.AttrOr("action", "")),
		FormHash:   formHash,
		UsernameID: doc.Find(`input[name="username"]`).First().AttrOr("id", ""),
		PasswordID: doc.Find(`input[name="password"]`).First().AttrOr("id", ""),
	}
	if idx := strings.LastIndex(formID, "_"); idx >= 0 {
		result.LoginHash = formID[idx+1:]
	}

	seccode := doc.Find(`input[name="seccodeverify"]`).First()
	if seccode.Length() > 0 {
		src, ok := doc.Find(captchaImgSelector).First().Attr("src")
		if !ok || src == "" {
			return nil, strategy, fmt.Errorf("%w: captcha required but image not found", common.ErrMalformedResponse)
		}
		result.Captcha = &models.CaptchaChallenge{
			Hash:     strings.ReplaceAll(seccode.AttrOr("id", ""), "seccodeverify_", ""),
			ImageURL: site.Resolve(src),
		}
	}

	return result, strategy, nil
}

// loginOutcome classifies the body returned by a login submission
type loginOutcome int

const (
	outcomeUndetermined loginOutcome = iota
	outcomeCaptchaRejected
	outcomeCredentialsRejected
	outcomeSucceeded
)

var (
	captchaErrorMarkers    = []string{"验证码错误", "验证码不正确"}
	credentialErrorMarkers = []string{"登录失败", "密码错误", "用户名不存在"}
	loginSuccessMarkers    = []string{"succeedhandle_", "登录成功", "欢迎您回来"}
)

func classifyLoginResponse(body string) loginOutcome {
	switch {
	case strings.Contains(body, "验证码") && containsAny(body, captchaErrorMarkers):
		return outcomeCaptchaRejected
	case containsAny(body, credentialErrorMarkers):
		return outcomeCredentialsRejected
	case containsAny(body, loginSuccessMarkers):
		return outcomeSucceeded
	default:
		return outcomeUndetermined
	}
}

// loggedIn decides from the home page whether the session is authenticated:
// a logout link, or a profile link with either no login link or the username in the page.
func loggedIn(doc *goquery.Document, body, username string) bool {
	logoutLinks := doc.Find(logoutLinkSelector).Length()
	loginLinks := doc.Find(loginLinkSelector).Length()
	profileLinks := doc.Find(profileLinkSelector).Length()
	usernameInPage := username != "" && strings.Contains(body, username)

	return logoutLinks > 0 || ((loginLinks == 0 || usernameInPage) && profileLinks > 0)
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
