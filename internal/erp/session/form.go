package session

import (
	"net/url"

	"github.com/metakgp/iitkgp-erp-login/internal/erp"
	"github.com/metakgp/iitkgp-erp-login/internal/pkg/goerror"
)

// loginFormInput is the material for the login form shared by the OTP request
// and the sign-in call. emailOTP is the only field allowed to be empty (it is
// empty on the OTP request).
type loginFormInput struct {
	userID       string
	password     string
	answer       string
	sessionToken string
	emailOTP     string
	requestedURL string
}

// buildLoginForm assembles the portal's login form. Every mandatory field
// missing is a distinct precondition failure, never a retryable error.
func buildLoginForm(in loginFormInput) (url.Values, error) {
	if in.userID == "" {
		return nil, goerror.NewPrecondition("roll number not found", goerror.CodeRollNumberMissing)
	}
	if in.password == "" {
		return nil, goerror.NewPrecondition("password not found", goerror.CodePasswordMissing)
	}
	if in.answer == "" {
		return nil, goerror.NewPrecondition("security question answer not found", goerror.CodeAnswerNotFound)
	}
	if in.sessionToken == "" {
		return nil, goerror.NewPrecondition("session token not found", goerror.CodeSessionTokenMissing)
	}

	return url.Values{
		erp.FieldUserID:       {in.userID},
		erp.FieldPassword:     {in.password},
		erp.FieldAnswer:       {in.answer},
		erp.FieldType:         {erp.TypeSignIn},
		erp.FieldEmailOTP:     {in.emailOTP},
		erp.FieldSessionToken: {in.sessionToken},
		erp.FieldRequestedURL: {in.requestedURL},
	}, nil
}
