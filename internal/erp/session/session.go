// Package session implements the ERP login sequence as a forward-only state
// machine: fetch the anti-forgery session token, resolve the security
// question, request an email OTP, sign in with it.
//
// Each operation validates that the session is in (or past) the state that
// produces its inputs, and no operation mutates session state on failure.
package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/metakgp/iitkgp-erp-login/internal/erp"
	"github.com/metakgp/iitkgp-erp-login/internal/erp/credential"
	"github.com/metakgp/iitkgp-erp-login/internal/pkg/clock"
	"github.com/metakgp/iitkgp-erp-login/internal/pkg/goerror"
)

// State identifies how far the login sequence has progressed. Transitions
// only move forward; the only permitted repetition is an external retry of
// the step that failed.
type State int

const (
	// StateUninitialized is the zero state: nothing fetched yet.
	StateUninitialized State = iota
	// StateTokenAcquired means the session token has been fetched.
	StateTokenAcquired
	// StateQuestionResolved means the security question is known.
	StateQuestionResolved
	// StateOTPRequested means the portal has been asked to send an OTP.
	StateOTPRequested
	// StateSignedIn is the terminal success state: an SSO token is held.
	StateSignedIn
)

// String returns a short name for the state.
func (s State) String() string {
	switch s {
	case StateTokenAcquired:
		return "token_acquired"
	case StateQuestionResolved:
		return "question_resolved"
	case StateOTPRequested:
		return "otp_requested"
	case StateSignedIn:
		return "signed_in"
	default:
		return "uninitialized"
	}
}

// Endpoints is the set of portal URLs a session talks to. Tests point these
// at an httptest server; production uses DefaultEndpoints.
type Endpoints struct {
	Base           string
	Homepage       string
	WelcomePage    string
	Login          string
	SecretQuestion string
	OTP            string
}

// DefaultEndpoints returns the institutional portal URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Base:           erp.BaseURL,
		Homepage:       erp.HomepageURL,
		WelcomePage:    erp.WelcomePageURL,
		Login:          erp.LoginURL,
		SecretQuestion: erp.SecretQuestionURL,
		OTP:            erp.OTPURL,
	}
}

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:141.0) Gecko/20100101 Firefox/141.0"
)

// Session owns the credentials, the HTTP client with its cookie jar, and the
// intermediate secrets of one login attempt. Not safe for concurrent state
// transitions; the cookie jar itself is internally synchronized, so Alive may
// run concurrently with the main sequence.
type Session struct {
	client    *http.Client
	clock     clock.Clocker
	endpoints Endpoints
	creds     *credential.Credentials

	state        State
	question     string
	answer       string
	sessionToken string
	ssoToken     string
	emailOTP     string
}

// Dependency carries the collaborators of a Session. Credentials is the only
// required field; the rest default to production implementations.
type Dependency struct {
	Credentials *credential.Credentials
	Client      *http.Client
	Clock       clock.Clocker
	Endpoints   *Endpoints
}

// New constructs a Session. The default HTTP client carries a fresh in-memory
// cookie jar and the transport-level timeout.
func New(dep Dependency) (*Session, error) {
	creds := dep.Credentials
	if creds == nil {
		creds = &credential.Credentials{}
	}

	client := dep.Client
	if client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		client = &http.Client{Jar: jar, Timeout: defaultTimeout}
	}

	clk := dep.Clock
	if clk == nil {
		clk = clock.New()
	}

	endpoints := DefaultEndpoints()
	if dep.Endpoints != nil {
		endpoints = *dep.Endpoints
	}

	return &Session{
		client:    client,
		clock:     clk,
		endpoints: endpoints,
		creds:     creds,
	}, nil
}

// State returns the current progress of the login sequence.
func (s *Session) State() State {
	return s.state
}

// Question returns the resolved security question, or "".
func (s *Session) Question() string {
	return s.question
}

// SSOToken returns the bearer token obtained by Signin or Load, or "".
func (s *Session) SSOToken() string {
	return s.ssoToken
}

// SessionToken fetches the anti-forgery token from the homepage and caches
// it. Idempotent: once fetched, subsequent calls return the cached value with
// no network call.
func (s *Session) SessionToken(ctx context.Context) (string, error) {
	if s.sessionToken != "" {
		return s.sessionToken, nil
	}

	resp, err := s.get(ctx, s.endpoints.Homepage)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		slog.ErrorContext(ctx, "homepage html unparsable", "error", err)
		return "", goerror.NewProtocol("homepage html unparsable", goerror.CodeTokenNotFound)
	}

	elem := doc.Find(erp.SessionTokenSelector).First()
	if elem.Length() == 0 {
		slog.ErrorContext(ctx, "session token element not found", "selector", erp.SessionTokenSelector)
		return "", goerror.NewProtocol("session token element not found", goerror.CodeTokenNotFound)
	}

	token, ok := elem.Attr("value")
	if !ok || token == "" {
		slog.ErrorContext(ctx, "session token element has no value", "selector", erp.SessionTokenSelector)
		return "", goerror.NewProtocol("session token value not found", goerror.CodeTokenNotFound)
	}

	s.sessionToken = token
	if s.state < StateTokenAcquired {
		s.state = StateTokenAcquired
	}

	return token, nil
}

// SecretQuestion submits the roll number and returns the account's security
// question. A roll number already stored in the credentials wins over the
// argument; whichever is used is kept for the rest of the sequence.
func (s *Session) SecretQuestion(ctx context.Context, rollNumber string) (string, error) {
	if s.state < StateTokenAcquired {
		return "", goerror.NewPrecondition("session token must be fetched first", goerror.CodeInvalidState)
	}

	roll := s.creds.RollNumber
	if roll == "" {
		roll = rollNumber
	}
	if roll == "" {
		return "", goerror.NewPrecondition("roll number not found", goerror.CodeRollNumberMissing)
	}

	body, _, err := s.postForm(ctx, s.endpoints.SecretQuestion, url.Values{
		erp.FieldUserID: {roll},
	})
	if err != nil {
		return "", err
	}

	if body == erp.RespInvalidRollNumber {
		slog.WarnContext(ctx, "portal rejected roll number")
		return "", goerror.NewPortal("invalid roll number", goerror.CodeInvalidRollNumber)
	}

	s.creds.RollNumber = roll
	s.question = body
	if s.state < StateQuestionResolved {
		s.state = StateQuestionResolved
	}

	slog.InfoContext(ctx, "security question resolved")

	return body, nil
}

// RequestOTP asks the portal to email an OTP to the registered address.
//
// The password falls back to the stored credential and the answer falls back
// to the answer map keyed by the resolved question. On success it returns the
// timestamp captured immediately before the request; OTP mails older than
// this instant must be rejected by the caller's OTP source.
func (s *Session) RequestOTP(ctx context.Context, password, answer string) (time.Time, error) {
	if s.state < StateQuestionResolved || s.state == StateSignedIn {
		return time.Time{}, goerror.NewPrecondition("security question must be resolved first", goerror.CodeInvalidState)
	}

	if password == "" {
		password = s.creds.Password
	}
	if password == "" {
		return time.Time{}, goerror.NewPrecondition("password not found", goerror.CodePasswordMissing)
	}

	if answer == "" {
		stored, ok := s.creds.AnswerFor(s.question)
		if !ok {
			return time.Time{}, goerror.NewPrecondition("security question answer not found", goerror.CodeAnswerNotFound)
		}
		answer = stored
	}

	form, err := buildLoginForm(loginFormInput{
		userID:       s.creds.RollNumber,
		password:     password,
		answer:       answer,
		sessionToken: s.sessionToken,
		requestedURL: s.endpoints.Homepage,
	})
	if err != nil {
		return time.Time{}, err
	}

	requestedAt := s.clock.Now()

	body, _, err := s.postForm(ctx, s.endpoints.OTP, form)
	if err != nil {
		return time.Time{}, err
	}

	var reply map[string]string
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		slog.ErrorContext(ctx, "otp response unparsable", "error", err)
		return time.Time{}, goerror.NewProtocol("otp response unparsable", goerror.CodeMalformedResponse)
	}

	msg, ok := reply["msg"]
	if !ok {
		slog.ErrorContext(ctx, "otp response has no msg field")
		return time.Time{}, goerror.NewProtocol("otp response has no msg field", goerror.CodeMalformedResponse)
	}

	switch msg {
	case erp.RespAnswerMismatch:
		slog.WarnContext(ctx, "portal rejected security answer")
		return time.Time{}, goerror.NewPortal("incorrect security question answer", goerror.CodeWrongAnswer)
	case erp.RespPasswordMismatch:
		slog.WarnContext(ctx, "portal rejected password")
		return time.Time{}, goerror.NewPortal("incorrect password", goerror.CodeWrongPassword)
	case erp.RespOTPSent:
		// accepted
	default:
		slog.WarnContext(ctx, "otp request rejected", "msg", msg)
		return time.Time{}, goerror.NewPortal("otp request rejected: "+msg, goerror.CodeOTPRequestRejected)
	}

	s.creds.Password = password
	s.answer = answer
	s.state = StateOTPRequested

	slog.InfoContext(ctx, "otp requested", "requested_at", requestedAt)

	return requestedAt, nil
}

// Signin completes the login with the emailed OTP and returns the SSO token
// parsed from the final redirect. Only a successful Signin (or a Load of a
// saved session) moves the session to StateSignedIn.
func (s *Session) Signin(ctx context.Context, otp string) (string, error) {
	if s.state != StateOTPRequested {
		return "", goerror.NewPrecondition("otp must be requested first", goerror.CodeInvalidState)
	}

	form, err := buildLoginForm(loginFormInput{
		userID:       s.creds.RollNumber,
		password:     s.creds.Password,
		answer:       s.answer,
		sessionToken: s.sessionToken,
		emailOTP:     otp,
		requestedURL: s.endpoints.Homepage,
	})
	if err != nil {
		return "", err
	}

	body, finalURL, err := s.postForm(ctx, s.endpoints.Login, form)
	if err != nil {
		return "", err
	}

	if body == erp.RespOTPMismatch {
		slog.WarnContext(ctx, "portal rejected otp")
		return "", goerror.NewPortal("otp mismatch", goerror.CodeOTPMismatch)
	}

	token := finalURL.Query().Get(erp.SSOTokenParam)
	if token == "" {
		slog.ErrorContext(ctx, "sso token not in redirect", "final_url", finalURL.Redacted())
		return "", goerror.NewProtocol("sso token not found in redirect url", goerror.CodeSSOTokenNotFound)
	}

	s.emailOTP = otp
	s.ssoToken = token
	s.state = StateSignedIn

	slog.InfoContext(ctx, "signed in")

	return token, nil
}

// LoginURL returns target (the homepage when empty) with the SSO token
// appended, usable to reach authenticated pages directly.
func (s *Session) LoginURL(target string) (string, error) {
	if s.ssoToken == "" {
		return "", goerror.NewPrecondition("not signed in", goerror.CodeNotSignedIn)
	}

	if target == "" {
		target = s.endpoints.Homepage
	}

	return target + "?" + erp.SSOTokenParam + "=" + url.QueryEscape(s.ssoToken), nil
}

// get issues a GET with the session's default headers.
func (s *Session) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, goerror.NewTransport(err)
	}

	return resp, nil
}

// postForm issues a POST and returns the response body together with the
// final URL after any redirects.
func (s *Session) postForm(ctx context.Context, rawURL string, form url.Values) (string, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", nil, goerror.NewTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, goerror.NewTransport(err)
	}

	return string(body), resp.Request.URL, nil
}

func (s *Session) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("timeout", "20")
}
