package session

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"

	"github.com/metakgp/iitkgp-erp-login/internal/erp"
)

// Save writes the two-line session record: session token, then SSO token,
// each line empty when the token is absent.
func (s *Session) Save(path string) error {
	record := s.sessionToken + "\n" + s.ssoToken + "\n"
	return os.WriteFile(path, []byte(record), 0o600)
}

// Load restores a saved session record. When the record holds an SSO token
// the cookie jar is replaced by a fresh one carrying only the ssoToken
// cookie on the portal origin, which is what lets a restored session reach
// authenticated pages without repeating the login sequence.
func (s *Session) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	sessionToken := ""
	if len(lines) > 0 {
		sessionToken = lines[0]
	}
	ssoToken := ""
	if len(lines) > 1 {
		ssoToken = lines[1]
	}

	s.sessionToken = sessionToken
	s.ssoToken = ssoToken

	switch {
	case ssoToken != "":
		if err := s.restoreCookie(ssoToken); err != nil {
			return err
		}
		s.state = StateSignedIn
	case sessionToken != "":
		s.state = StateTokenAcquired
	default:
		s.state = StateUninitialized
	}

	return nil
}

// restoreCookie is the narrow "clear and insert" operation on the shared
// cookie jar: everything accumulated so far is dropped and a single SSO
// cookie scoped to the portal origin is installed.
func (s *Session) restoreCookie(ssoToken string) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}

	origin, err := url.Parse(s.endpoints.Base)
	if err != nil {
		return err
	}

	jar.SetCookies(origin, []*http.Cookie{{
		Name:  erp.SSOTokenParam,
		Value: ssoToken,
		Path:  "/",
	}})

	s.client.Jar = jar

	return nil
}
