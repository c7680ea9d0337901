package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/browser"
	"golang.org/x/term"

	"github.com/metakgp/iitkgp-erp-login/internal/erp/credential"
	"github.com/metakgp/iitkgp-erp-login/internal/erp/otp"
	"github.com/metakgp/iitkgp-erp-login/internal/erp/otp/gmail"
	"github.com/metakgp/iitkgp-erp-login/internal/erp/session"
	"github.com/metakgp/iitkgp-erp-login/internal/pkg/clock"
	"github.com/metakgp/iitkgp-erp-login/internal/pkg/config"
	"github.com/metakgp/iitkgp-erp-login/internal/pkg/instrument"
	"github.com/metakgp/iitkgp-erp-login/internal/pkg/uid"
	"github.com/metakgp/iitkgp-erp-login/internal/pkg/validator"
)

var configDefaults = map[string]any{
	"files.credentials":      "erpcreds.json",
	"files.session":          ".session",
	"gmail.secret":           "gmail_client_secret.json",
	"gmail.token":            "gmail_token_cache.json",
	"otp.max_attempts":       4,
	"otp.base_delay_seconds": 5,
	"log.mask_fields":        "password,answer,email_otp,ssotoken",
}

func main() {
	cfg := loadConfig()
	defer cfg.Close()

	instrument.Init("erp-login", cfg.GetArray("log.mask_fields"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = instrument.WithCorrelationID(ctx, uid.NewUUID().Generate())

	if err := run(ctx, cfg); err != nil {
		slog.ErrorContext(ctx, "login failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	cfg, err := config.NewViper("config.yaml", configDefaults)
	if err == nil {
		return cfg
	}

	cfg, err = config.NewViperFromBytes("yaml", []byte("{}"), configDefaults)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config init failed: %v\n", err)
		os.Exit(1)
	}

	return cfg
}

func run(ctx context.Context, cfg config.Config) error {
	sessionPath := cfg.GetString("files.session")

	// Fast path: a saved session that is still alive skips the whole login.
	if _, err := os.Stat(sessionPath); err == nil {
		slog.InfoContext(ctx, "found session file, checking liveness", "path", sessionPath)
		if loginURL, ok := restoreSession(ctx, sessionPath); ok {
			return browser.OpenURL(loginURL)
		}
	}

	v, err := validator.NewV10Validator()
	if err != nil {
		return err
	}

	creds, err := credential.Load(cfg.GetString("files.credentials"), v)
	if err != nil {
		slog.InfoContext(ctx, "no usable credential file, falling back to prompts", "error", err)
		creds = &credential.Credentials{}
	}

	if creds.RollNumber == "" {
		roll, err := promptLine("Enter roll number: ")
		if err != nil {
			return err
		}
		creds.RollNumber = roll
	}
	if creds.Password == "" {
		password, err := promptSecret("Enter password: ")
		if err != nil {
			return err
		}
		creds.Password = password
	}

	sess, err := session.New(session.Dependency{Credentials: creds})
	if err != nil {
		return err
	}

	if _, err := sess.SessionToken(ctx); err != nil {
		return err
	}

	question, err := sess.SecretQuestion(ctx, "")
	if err != nil {
		return err
	}

	answer, ok := creds.AnswerFor(question)
	if !ok {
		answer, err = promptSecret(question + ": ")
		if err != nil {
			return err
		}
	}

	requestedAt, err := sess.RequestOTP(ctx, "", answer)
	if err != nil {
		return err
	}

	code, err := acquireOTP(ctx, cfg, requestedAt.Unix())
	if err != nil {
		return err
	}
	if code == "" {
		return fmt.Errorf("no otp obtained")
	}

	if _, err := sess.Signin(ctx, code); err != nil {
		return err
	}

	if err := sess.Save(sessionPath); err != nil {
		return err
	}

	loginURL, err := sess.LoginURL("")
	if err != nil {
		return err
	}

	return browser.OpenURL(loginURL)
}

// restoreSession loads a saved session and returns its login URL when the
// session is still alive.
func restoreSession(ctx context.Context, path string) (string, bool) {
	sess, err := session.New(session.Dependency{})
	if err != nil {
		return "", false
	}

	if err := sess.Load(path); err != nil {
		slog.WarnContext(ctx, "session file unreadable", "path", path, "error", err)
		return "", false
	}

	alive, err := sess.Alive(ctx)
	if err != nil {
		slog.WarnContext(ctx, "liveness check failed", "error", err)
		return "", false
	}
	if !alive {
		slog.InfoContext(ctx, "saved session expired")
		return "", false
	}

	loginURL, err := sess.LoginURL("")
	if err != nil {
		return "", false
	}

	return loginURL, true
}

// acquireOTP races the Gmail poller against manual entry; the first value
// wins and the loser is abandoned.
func acquireOTP(ctx context.Context, cfg config.Config, afterUnix int64) (string, error) {
	producers := []func(context.Context) (string, error){
		func(context.Context) (string, error) {
			return promptSecret("Enter OTP (or wait for inbox polling): ")
		},
	}

	source, err := gmail.New(ctx, cfg.GetString("gmail.secret"), cfg.GetString("gmail.token"))
	if err != nil {
		slog.WarnContext(ctx, "gmail otp source unavailable, manual entry only", "error", err)
	} else {
		waiter := otp.NewWaiter(source, clock.New(), cfg.GetSecond("otp.base_delay_seconds"))
		maxAttempts := cfg.GetInt("otp.max_attempts")
		producers = append(producers, func(ctx context.Context) (string, error) {
			return waiter.Wait(ctx, afterUnix, maxAttempts)
		})
	}

	return otp.First(ctx, producers...)
}

func promptLine(label string) (string, error) {
	fmt.Print(label)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

func promptSecret(label string) (string, error) {
	fmt.Print(label)

	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(secret)), nil
}
