// Package erp holds the fixed contract of the ERP portal: endpoint URLs,
// sentinel response strings and the login form field names.
//
// These values are owned by the portal, not by us. When login breaks after a
// portal update, this file is the first place to diff.
package erp

// Portal endpoints. Fixed institutional URLs.
const (
	BaseURL     = "https://erp.iitkgp.ac.in"
	HomepageURL = "https://erp.iitkgp.ac.in/IIT_ERP3/"
	// WelcomePageURL serves the page used by the liveness check.
	WelcomePageURL     = "https://erp.iitkgp.ac.in/IIT_ERP3/welcome.jsp"
	LoginURL           = "https://erp.iitkgp.ac.in/SSOAdministration/auth.htm"
	SecretQuestionURL  = "https://erp.iitkgp.ac.in/SSOAdministration/getSecurityQues.htm"
	OTPURL             = "https://erp.iitkgp.ac.in/SSOAdministration/getEmilOTP.htm" // typo is the portal's
)

// Sentinel response bodies the portal uses instead of status codes.
const (
	// RespInvalidRollNumber is the secret-question endpoint's whole response
	// body for an unknown roll number.
	RespInvalidRollNumber = "FALSE"

	// RespAnswerMismatch is the OTP endpoint's msg for a wrong security
	// answer. The trailing space and the spelling are the portal's.
	RespAnswerMismatch = "Unable to send OTP due to security question's answare mismatch ."

	// RespPasswordMismatch is the OTP endpoint's msg for a wrong password.
	RespPasswordMismatch = "Unable to send OTP due to password mismatch."

	// RespOTPSent is the OTP endpoint's msg on success.
	RespOTPSent = "An OTP(valid for a short time) has been sent to your email id registered with ERP, IIT Kharagpur. Please use that OTP for further processing. "

	// RespOTPMismatch is the sign-in endpoint's whole response body for a
	// wrong OTP.
	RespOTPMismatch = "ERROR:Email OTP mismatch"
)

// Login form field names, shared by the OTP request and the sign-in call.
const (
	FieldUserID       = "user_id"
	FieldPassword     = "password"
	FieldAnswer       = "answer"
	FieldType         = "typeee" // always "SI"; purpose unknown upstream
	FieldEmailOTP     = "email_otp"
	FieldSessionToken = "sessionToken"
	FieldRequestedURL = "requestedUrl"

	TypeSignIn = "SI"
)

// SSOTokenParam is the query parameter carrying the SSO token on the
// post-sign-in redirect and on authenticated login URLs.
const SSOTokenParam = "ssoToken"

// SessionTokenSelector locates the hidden anti-forgery token on the homepage.
const SessionTokenSelector = "#sessionToken"

// OTP mail identification on the registered inbox.
const (
	OTPMailSender        = "erp@iitkgp.ac.in"
	OTPMailSubjectPrefix = "OTP for Sign In"
)

// WelcomePageLength is the exact byte length of the welcome page that the
// liveness check compares against. Brittle by construction; see
// session.Alive.
const WelcomePageLength = 1034
