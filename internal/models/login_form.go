package models

// LoginForm is what the authenticator extracts from the login page.
// It is parsed fresh for every attempt and never persisted.
type LoginForm struct {
	FormID     string
	LoginHash  string // random suffix of the form id (loginform_<hash>)
	Action     string
	FormHash   string // anti-forgery token
	UsernameID string // dynamic element id of the username input, may be empty
	PasswordID string // dynamic element id of the password input, may be empty
	Captcha    *CaptchaChallenge
}

// CaptchaChallenge is present when the login form demands a captcha
type CaptchaChallenge struct {
	Hash     string // seccodehash, taken from the seccodeverify_<hash> input id
	ImageURL string
}
