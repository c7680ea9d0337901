package session

import (
	"testing"

	"github.com/metakgp/iitkgp-erp-login/internal/erp"
	"github.com/metakgp/iitkgp-erp-login/internal/pkg/goerror"
)

func completeFormInput() loginFormInput {
	return loginFormInput{
		userID:       "21CS1000",
		password:     "pw",
		answer:       "blue",
		sessionToken: "TOK-123456",
		requestedURL: erp.HomepageURL,
	}
}

func TestBuildLoginFormComplete(t *testing.T) {
	in := completeFormInput()

	form, err := buildLoginForm(in)
	if err != nil {
		t.Fatalf("buildLoginForm returned error: %v", err)
	}

	if got := form.Get(erp.FieldType); got != erp.TypeSignIn {
		t.Fatalf("form[%s] = %q, want %q", erp.FieldType, got, erp.TypeSignIn)
	}
	// The OTP field is present but empty on the OTP request call.
	if _, ok := form[erp.FieldEmailOTP]; !ok {
		t.Fatalf("form is missing the %s field", erp.FieldEmailOTP)
	}
	if got := form.Get(erp.FieldEmailOTP); got != "" {
		t.Fatalf("form[%s] = %q, want empty", erp.FieldEmailOTP, got)
	}
	if got := form.Get(erp.FieldRequestedURL); got != erp.HomepageURL {
		t.Fatalf("form[%s] = %q, want %q", erp.FieldRequestedURL, got, erp.HomepageURL)
	}
}

func TestBuildLoginFormMissingFields(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*loginFormInput)
		wantCode goerror.Code
	}{
		{
			name:     "missing roll number",
			mutate:   func(in *loginFormInput) { in.userID = "" },
			wantCode: goerror.CodeRollNumberMissing,
		},
		{
			name:     "missing password",
			mutate:   func(in *loginFormInput) { in.password = "" },
			wantCode: goerror.CodePasswordMissing,
		},
		{
			name:     "missing answer",
			mutate:   func(in *loginFormInput) { in.answer = "" },
			wantCode: goerror.CodeAnswerNotFound,
		},
		{
			name:     "missing session token",
			mutate:   func(in *loginFormInput) { in.sessionToken = "" },
			wantCode: goerror.CodeSessionTokenMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := completeFormInput()
			tt.mutate(&in)

			_, err := buildLoginForm(in)
			if !goerror.HasCode(err, tt.wantCode) {
				t.Fatalf("error code = %v, want %v", goerror.CodeOf(err), tt.wantCode)
			}
			if goerror.TypeOf(err) != goerror.TypePrecondition {
				t.Fatalf("error type = %v, want precondition", goerror.TypeOf(err))
			}
		})
	}
}
