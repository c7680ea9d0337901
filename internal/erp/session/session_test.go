package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/metakgp/iitkgp-erp-login/internal/erp"
	"github.com/metakgp/iitkgp-erp-login/internal/erp/credential"
	"github.com/metakgp/iitkgp-erp-login/internal/pkg/goerror"
)

const testToken = "TOK-123456"

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Sleep(context.Context, time.Duration) error { return nil }

// testPortal is an httptest stand-in for the institutional portal. Handlers
// not relevant to a test keep their defaults.
type testPortal struct {
	srv          *httptest.Server
	homepageHits atomic.Int32

	questionBody string
	otpBody      string
	signinFn     func(w http.ResponseWriter, r *http.Request)
	homepageHTML string
	welcomeBody  string
}

func newTestPortal(t *testing.T) *testPortal {
	t.Helper()

	p := &testPortal{
		questionBody: "Favorite color?",
		otpBody:      fmt.Sprintf(`{"msg": %q}`, erp.RespOTPSent),
		homepageHTML: fmt.Sprintf(
			`<html><body><form><input type="hidden" id="sessionToken" value=%q/></form></body></html>`,
			testToken,
		),
	}
	p.signinFn = func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/IIT_ERP3/?ssoToken=abc123", http.StatusFound)
	}
	p.welcomeBody = strings.Repeat("w", erp.WelcomePageLength)

	mux := http.NewServeMux()
	mux.HandleFunc("/IIT_ERP3/", func(w http.ResponseWriter, _ *http.Request) {
		p.homepageHits.Add(1)
		fmt.Fprint(w, p.homepageHTML)
	})
	mux.HandleFunc("/SSOAdministration/getSecurityQues.htm", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue(erp.FieldUserID) == "" {
			fmt.Fprint(w, erp.RespInvalidRollNumber)
			return
		}
		fmt.Fprint(w, p.questionBody)
	})
	mux.HandleFunc("/SSOAdministration/getEmilOTP.htm", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, p.otpBody)
	})
	mux.HandleFunc("/SSOAdministration/auth.htm", func(w http.ResponseWriter, r *http.Request) {
		p.signinFn(w, r)
	})
	mux.HandleFunc("/IIT_ERP3/welcome.jsp", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, p.welcomeBody)
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)

	return p
}

func (p *testPortal) endpoints() Endpoints {
	return Endpoints{
		Base:           p.srv.URL,
		Homepage:       p.srv.URL + "/IIT_ERP3/",
		WelcomePage:    p.srv.URL + "/IIT_ERP3/welcome.jsp",
		Login:          p.srv.URL + "/SSOAdministration/auth.htm",
		SecretQuestion: p.srv.URL + "/SSOAdministration/getSecurityQues.htm",
		OTP:            p.srv.URL + "/SSOAdministration/getEmilOTP.htm",
	}
}

func newTestSession(t *testing.T, p *testPortal, creds *credential.Credentials) *Session {
	t.Helper()

	eps := p.endpoints()
	sess, err := New(Dependency{
		Credentials: creds,
		Clock:       &fakeClock{now: time.Unix(1700000000, 0)},
		Endpoints:   &eps,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	return sess
}

func TestSessionTokenIsMemoized(t *testing.T) {
	p := newTestPortal(t)
	sess := newTestSession(t, p, nil)
	ctx := context.Background()

	first, err := sess.SessionToken(ctx)
	if err != nil {
		t.Fatalf("SessionToken returned error: %v", err)
	}
	if first != testToken {
		t.Fatalf("SessionToken = %q, want %q", first, testToken)
	}
	if sess.State() != StateTokenAcquired {
		t.Fatalf("state = %v, want token_acquired", sess.State())
	}

	second, err := sess.SessionToken(ctx)
	if err != nil {
		t.Fatalf("second SessionToken returned error: %v", err)
	}
	if second != first {
		t.Fatalf("second SessionToken = %q, want identical %q", second, first)
	}
	if hits := p.homepageHits.Load(); hits != 1 {
		t.Fatalf("homepage fetched %d times, want exactly 1", hits)
	}
}

func TestSessionTokenMissingElement(t *testing.T) {
	p := newTestPortal(t)
	p.homepageHTML = `<html><body>maintenance</body></html>`
	sess := newTestSession(t, p, nil)

	_, err := sess.SessionToken(context.Background())
	if !goerror.HasCode(err, goerror.CodeTokenNotFound) {
		t.Fatalf("error code = %v, want CodeTokenNotFound", goerror.CodeOf(err))
	}
	if sess.State() != StateUninitialized {
		t.Fatalf("state advanced to %v on failure", sess.State())
	}
}

func TestSecretQuestionRequiresToken(t *testing.T) {
	p := newTestPortal(t)
	sess := newTestSession(t, p, &credential.Credentials{RollNumber: "21CS1000"})

	_, err := sess.SecretQuestion(context.Background(), "")
	if !goerror.HasCode(err, goerror.CodeInvalidState) {
		t.Fatalf("error code = %v, want CodeInvalidState", goerror.CodeOf(err))
	}
}

func TestSecretQuestionStoredRollWins(t *testing.T) {
	p := newTestPortal(t)
	creds := &credential.Credentials{RollNumber: "21CS1000"}
	sess := newTestSession(t, p, creds)
	ctx := context.Background()

	if _, err := sess.SessionToken(ctx); err != nil {
		t.Fatalf("SessionToken returned error: %v", err)
	}

	question, err := sess.SecretQuestion(ctx, "22EE2000")
	if err != nil {
		t.Fatalf("SecretQuestion returned error: %v", err)
	}
	if question != "Favorite color?" {
		t.Fatalf("question = %q, want %q", question, "Favorite color?")
	}
	if creds.RollNumber != "21CS1000" {
		t.Fatalf("stored roll number changed to %q", creds.RollNumber)
	}
	if sess.Question() != question {
		t.Fatalf("Question() = %q, want cached %q", sess.Question(), question)
	}
}

func TestSecretQuestionInvalidRollNumber(t *testing.T) {
	p := newTestPortal(t)
	p.questionBody = erp.RespInvalidRollNumber
	sess := newTestSession(t, p, &credential.Credentials{RollNumber: "00XX0000"})
	ctx := context.Background()

	if _, err := sess.SessionToken(ctx); err != nil {
		t.Fatalf("SessionToken returned error: %v", err)
	}

	_, err := sess.SecretQuestion(ctx, "")
	if !goerror.HasCode(err, goerror.CodeInvalidRollNumber) {
		t.Fatalf("error code = %v, want CodeInvalidRollNumber", goerror.CodeOf(err))
	}
	if sess.Question() != "" {
		t.Fatalf("question cached on failure: %q", sess.Question())
	}
}

func TestSecretQuestionMissingRollNumber(t *testing.T) {
	p := newTestPortal(t)
	sess := newTestSession(t, p, nil)
	ctx := context.Background()

	if _, err := sess.SessionToken(ctx); err != nil {
		t.Fatalf("SessionToken returned error: %v", err)
	}

	_, err := sess.SecretQuestion(ctx, "")
	if !goerror.HasCode(err, goerror.CodeRollNumberMissing) {
		t.Fatalf("error code = %v, want CodeRollNumberMissing", goerror.CodeOf(err))
	}
}

func TestFullLoginFlow(t *testing.T) {
	p := newTestPortal(t)
	creds := &credential.Credentials{
		RollNumber: "21CS1000",
		Password:   "pw",
		AnswerMap:  map[string]string{"Favorite color?": "blue"},
	}
	sess := newTestSession(t, p, creds)
	ctx := context.Background()

	if _, err := sess.SessionToken(ctx); err != nil {
		t.Fatalf("SessionToken returned error: %v", err)
	}
	if _, err := sess.SecretQuestion(ctx, ""); err != nil {
		t.Fatalf("SecretQuestion returned error: %v", err)
	}

	requestedAt, err := sess.RequestOTP(ctx, "", "")
	if err != nil {
		t.Fatalf("RequestOTP returned error: %v", err)
	}
	if requestedAt != time.Unix(1700000000, 0) {
		t.Fatalf("requestedAt = %v, want the clock's instant", requestedAt)
	}
	if sess.State() != StateOTPRequested {
		t.Fatalf("state = %v, want otp_requested", sess.State())
	}

	ssoToken, err := sess.Signin(ctx, "482913")
	if err != nil {
		t.Fatalf("Signin returned error: %v", err)
	}
	if ssoToken != "abc123" {
		t.Fatalf("Signin = %q, want %q", ssoToken, "abc123")
	}
	if sess.State() != StateSignedIn {
		t.Fatalf("state = %v, want signed_in", sess.State())
	}

	loginURL, err := sess.LoginURL("")
	if err != nil {
		t.Fatalf("LoginURL returned error: %v", err)
	}
	want := p.endpoints().Homepage + "?ssoToken=abc123"
	if loginURL != want {
		t.Fatalf("LoginURL = %q, want %q", loginURL, want)
	}
}

func TestRequestOTPWrongPasswordMutatesNothing(t *testing.T) {
	p := newTestPortal(t)
	p.otpBody = `{"msg": "Unable to send OTP due to password mismatch."}`
	creds := &credential.Credentials{
		RollNumber: "21CS1000",
		Password:   "pw",
		AnswerMap:  map[string]string{"Favorite color?": "blue"},
	}
	sess := newTestSession(t, p, creds)
	ctx := context.Background()

	if _, err := sess.SessionToken(ctx); err != nil {
		t.Fatalf("SessionToken returned error: %v", err)
	}
	if _, err := sess.SecretQuestion(ctx, ""); err != nil {
		t.Fatalf("SecretQuestion returned error: %v", err)
	}

	_, err := sess.RequestOTP(ctx, "", "")
	if !goerror.HasCode(err, goerror.CodeWrongPassword) {
		t.Fatalf("error code = %v, want CodeWrongPassword", goerror.CodeOf(err))
	}
	if goerror.TypeOf(err) != goerror.TypePortal {
		t.Fatalf("error type = %v, want portal rejection", goerror.TypeOf(err))
	}

	if sess.State() != StateQuestionResolved {
		t.Fatalf("state advanced to %v on failure", sess.State())
	}
	if sess.SSOToken() != "" {
		t.Fatalf("sso token set on failure: %q", sess.SSOToken())
	}

	// Sign-in must stay unreachable: the OTP request never succeeded.
	_, err = sess.Signin(ctx, "482913")
	if !goerror.HasCode(err, goerror.CodeInvalidState) {
		t.Fatalf("Signin error code = %v, want CodeInvalidState", goerror.CodeOf(err))
	}
}

func TestRequestOTPSentinelResponses(t *testing.T) {
	tests := []struct {
		name     string
		otpBody  string
		wantCode goerror.Code
	}{
		{
			name:     "wrong answer",
			otpBody:  fmt.Sprintf(`{"msg": %q}`, erp.RespAnswerMismatch),
			wantCode: goerror.CodeWrongAnswer,
		},
		{
			name:     "unknown message",
			otpBody:  `{"msg": "OTP quota exceeded."}`,
			wantCode: goerror.CodeOTPRequestRejected,
		},
		{
			name:     "missing msg field",
			otpBody:  `{"status": "ok"}`,
			wantCode: goerror.CodeMalformedResponse,
		},
		{
			name:     "unparsable body",
			otpBody:  `<html>gateway timeout</html>`,
			wantCode: goerror.CodeMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPortal(t)
			p.otpBody = tt.otpBody
			creds := &credential.Credentials{
				RollNumber: "21CS1000",
				Password:   "pw",
				AnswerMap:  map[string]string{"Favorite color?": "blue"},
			}
			sess := newTestSession(t, p, creds)
			ctx := context.Background()

			if _, err := sess.SessionToken(ctx); err != nil {
				t.Fatalf("SessionToken returned error: %v", err)
			}
			if _, err := sess.SecretQuestion(ctx, ""); err != nil {
				t.Fatalf("SecretQuestion returned error: %v", err)
			}

			_, err := sess.RequestOTP(ctx, "", "")
			if !goerror.HasCode(err, tt.wantCode) {
				t.Fatalf("error code = %v, want %v", goerror.CodeOf(err), tt.wantCode)
			}
		})
	}
}

func TestRequestOTPAnswerNotFound(t *testing.T) {
	p := newTestPortal(t)
	creds := &credential.Credentials{RollNumber: "21CS1000", Password: "pw"}
	sess := newTestSession(t, p, creds)
	ctx := context.Background()

	if _, err := sess.SessionToken(ctx); err != nil {
		t.Fatalf("SessionToken returned error: %v", err)
	}
	if _, err := sess.SecretQuestion(ctx, ""); err != nil {
		t.Fatalf("SecretQuestion returned error: %v", err)
	}

	_, err := sess.RequestOTP(ctx, "", "")
	if !goerror.HasCode(err, goerror.CodeAnswerNotFound) {
		t.Fatalf("error code = %v, want CodeAnswerNotFound", goerror.CodeOf(err))
	}
}

func TestSigninOTPMismatch(t *testing.T) {
	p := newTestPortal(t)
	p.signinFn = func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, erp.RespOTPMismatch)
	}
	sess := loginUpToOTP(t, p)

	_, err := sess.Signin(context.Background(), "000000")
	if !goerror.HasCode(err, goerror.CodeOTPMismatch) {
		t.Fatalf("error code = %v, want CodeOTPMismatch", goerror.CodeOf(err))
	}
	if sess.SSOToken() != "" {
		t.Fatalf("sso token set on failure: %q", sess.SSOToken())
	}
}

func TestSigninSSOTokenMissing(t *testing.T) {
	p := newTestPortal(t)
	p.signinFn = func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/IIT_ERP3/", http.StatusFound)
	}
	sess := loginUpToOTP(t, p)

	_, err := sess.Signin(context.Background(), "482913")
	if !goerror.HasCode(err, goerror.CodeSSOTokenNotFound) {
		t.Fatalf("error code = %v, want CodeSSOTokenNotFound", goerror.CodeOf(err))
	}
}

func TestSigninSubmitsFullForm(t *testing.T) {
	p := newTestPortal(t)
	var form map[string]string
	p.signinFn = func(w http.ResponseWriter, r *http.Request) {
		form = map[string]string{
			erp.FieldUserID:       r.FormValue(erp.FieldUserID),
			erp.FieldPassword:     r.FormValue(erp.FieldPassword),
			erp.FieldAnswer:       r.FormValue(erp.FieldAnswer),
			erp.FieldType:         r.FormValue(erp.FieldType),
			erp.FieldEmailOTP:     r.FormValue(erp.FieldEmailOTP),
			erp.FieldSessionToken: r.FormValue(erp.FieldSessionToken),
		}
		http.Redirect(w, r, "/IIT_ERP3/?ssoToken=abc123", http.StatusFound)
	}
	sess := loginUpToOTP(t, p)

	if _, err := sess.Signin(context.Background(), "482913"); err != nil {
		t.Fatalf("Signin returned error: %v", err)
	}

	want := map[string]string{
		erp.FieldUserID:       "21CS1000",
		erp.FieldPassword:     "pw",
		erp.FieldAnswer:       "blue",
		erp.FieldType:         erp.TypeSignIn,
		erp.FieldEmailOTP:     "482913",
		erp.FieldSessionToken: testToken,
	}
	for field, wantVal := range want {
		if form[field] != wantVal {
			t.Fatalf("form[%s] = %q, want %q", field, form[field], wantVal)
		}
	}
}

func TestLoginURLRequiresSignin(t *testing.T) {
	p := newTestPortal(t)
	sess := newTestSession(t, p, nil)

	_, err := sess.LoginURL("")
	if !goerror.HasCode(err, goerror.CodeNotSignedIn) {
		t.Fatalf("error code = %v, want CodeNotSignedIn", goerror.CodeOf(err))
	}
}

// loginUpToOTP walks a fresh session through token, question and OTP request.
func loginUpToOTP(t *testing.T, p *testPortal) *Session {
	t.Helper()

	creds := &credential.Credentials{
		RollNumber: "21CS1000",
		Password:   "pw",
		AnswerMap:  map[string]string{"Favorite color?": "blue"},
	}
	sess := newTestSession(t, p, creds)
	ctx := context.Background()

	if _, err := sess.SessionToken(ctx); err != nil {
		t.Fatalf("SessionToken returned error: %v", err)
	}
	if _, err := sess.SecretQuestion(ctx, ""); err != nil {
		t.Fatalf("SecretQuestion returned error: %v", err)
	}
	if _, err := sess.RequestOTP(ctx, "", ""); err != nil {
		t.Fatalf("RequestOTP returned error: %v", err)
	}

	return sess
}
