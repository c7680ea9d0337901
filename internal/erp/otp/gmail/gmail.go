// Package gmail adapts the Gmail REST API to the otp.Source capability.
//
// It uses the installed-application OAuth2 flow: a client secret JSON file
// plus an on-disk token cache, so the browser consent step happens once.
package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/metakgp/iitkgp-erp-login/internal/erp"
	"github.com/metakgp/iitkgp-erp-login/internal/erp/otp"
	"github.com/metakgp/iitkgp-erp-login/internal/pkg/goerror"
)

// Source reads OTP mails from the account's Gmail inbox.
type Source struct {
	svc   *gmailapi.Service
	query string
}

// New builds a Source from the OAuth2 client secret at secretPath, caching
// the obtained token at tokenPath. When no cached token exists the user is
// walked through the consent flow on stdin/stdout.
func New(ctx context.Context, secretPath, tokenPath string) (*Source, error) {
	secret, err := os.ReadFile(secretPath)
	if err != nil {
		return nil, err
	}

	conf, err := google.ConfigFromJSON(secret, gmailapi.GmailReadonlyScope)
	if err != nil {
		return nil, err
	}

	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		tok, err = tokenFromWeb(ctx, conf)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenPath, tok); err != nil {
			return nil, err
		}
	}

	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, tok)))
	if err != nil {
		return nil, err
	}

	return &Source{
		svc:   svc,
		query: fmt.Sprintf("from:%s subject:%q", erp.OTPMailSender, erp.OTPMailSubjectPrefix),
	}, nil
}

// FetchLatest returns the newest matching OTP mail not older than afterUnix,
// or (nil, nil) when none has arrived yet. A matching mail with missing
// headers or no code in its subject is a hard error.
func (s *Source) FetchLatest(ctx context.Context, afterUnix int64) (*otp.Message, error) {
	list, err := s.svc.Users.Messages.List("me").Q(s.query).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return nil, goerror.NewTransport(err)
	}

	if len(list.Messages) == 0 {
		return nil, nil
	}

	id := list.Messages[0].Id
	if id == "" {
		return nil, goerror.NewProtocol("mail id not found", goerror.CodeMalformedResponse)
	}

	msg, err := s.svc.Users.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders("Subject", "Date").
		Context(ctx).
		Do()
	if err != nil {
		return nil, goerror.NewTransport(err)
	}

	if msg.Payload == nil {
		return nil, goerror.NewProtocol("mail payload not found", goerror.CodeMalformedResponse)
	}

	var subject, date string
	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "Subject":
			subject = h.Value
		case "Date":
			date = h.Value
		}
	}
	if date == "" {
		return nil, goerror.NewProtocol("mail date header not found", goerror.CodeMalformedResponse)
	}
	if subject == "" {
		return nil, goerror.NewProtocol("mail subject header not found", goerror.CodeMalformedResponse)
	}

	sentAt, err := mail.ParseDate(date)
	if err != nil {
		return nil, goerror.NewProtocol("mail date header unparsable", goerror.CodeMalformedResponse)
	}

	// Older than the OTP request: not a match, keep polling.
	if sentAt.Unix() < afterUnix {
		return nil, nil
	}

	code, err := otp.FromSubject(subject)
	if err != nil {
		return nil, err
	}

	return &otp.Message{OTP: code, Timestamp: sentAt.Unix()}, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}

	return tok, nil
}

func tokenFromWeb(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	authURL := conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Open the following link in your browser, then paste the authorization code:\n%v\n> ", authURL)

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return nil, err
	}

	return conf.Exchange(ctx, code)
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(tok)
}
