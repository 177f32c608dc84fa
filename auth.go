package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	usernameSelectors   = []string{"//input[@name='userName']"}
	passwordSelectors   = []string{"//input[@name='password']"}
	understandSelectors = []string{"//input[@name='understand']"}
	loginSelectors      = []string{"//*[@id='login']"}
	otpInputSelectors   = []string{"//input[@id='oneTimePassword']"}
	otpConfirmSelectors = []string{"//*[@id='confirmLogin']"}
)

// Phrases the portal shows when a one-time code is rejected.
var invalidCodePhrases = []string{
	"invalid one-time",
	"invalid one time",
	"invalid code",
	"invalid passcode",
	"invalid verification",
	"incorrect code",
	"code is invalid",
	"code is incorrect",
	"code has expired",
}

const maxTerminalCodeAttempts = 3

type TwoFactorOutcome int

const (
	TwoFactorPending TwoFactorOutcome = iota
	TwoFactorSuccess
	TwoFactorInvalidCode
	TwoFactorTimeout
)

func (o TwoFactorOutcome) String() string {
	switch o {
	case TwoFactorSuccess:
		return "success"
	case TwoFactorInvalidCode:
		return "invalid_code"
	case TwoFactorTimeout:
		return "timeout"
	default:
		return "pending"
	}
}

// classifyTwoFactorPage maps what the page shows to an observation. Leaving
// the verification URL is success; a rejection message is an invalid code.
func classifyTwoFactorPage(otpURL, currentURL, bodyText string) TwoFactorOutcome {
	if currentURL != "" && otpURL != "" && currentURL != otpURL {
		return TwoFactorSuccess
	}
	if contains(bodyText, invalidCodePhrases...) {
		return TwoFactorInvalidCode
	}
	return TwoFactorPending
}

// TwoFactorPoller waits for a human to finish verification in the visible
// browser. It ends in exactly one of success, timeout, or context
// cancellation; rejected codes are reported through OnInvalid and polling
// continues so the operator can retry.
type TwoFactorPoller struct {
	Interval  time.Duration
	Timeout   time.Duration
	Observe   func(ctx context.Context) (TwoFactorOutcome, error)
	OnInvalid func(count int)
}

func (p *TwoFactorPoller) Wait(ctx context.Context) (TwoFactorOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	invalidCount := 0
	lastInvalid := false
	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return TwoFactorTimeout, ErrAuthTimeout
			}
			return TwoFactorPending, ctx.Err()
		case <-ticker.C:
		}

		outcome, err := p.Observe(ctx)
		if err != nil {
			// The page is often mid-navigation right after a submit.
			continue
		}

		switch outcome {
		case TwoFactorSuccess:
			return TwoFactorSuccess, nil
		case TwoFactorInvalidCode:
			if !lastInvalid {
				invalidCount++
				if p.OnInvalid != nil {
					p.OnInvalid(invalidCount)
				}
			}
			lastInvalid = true
		default:
			lastInvalid = false
		}
	}
}

// Authenticator signs in to the portal.
type Authenticator struct {
	env     *RunEnv
	browser *BrowserSession
	loc     *Locator
	ui      *Interactor
	log     *zap.Logger
}

func NewAuthenticator(env *RunEnv, browser *BrowserSession, loc *Locator, ui *Interactor) *Authenticator {
	return &Authenticator{
		env:     env,
		browser: browser,
		loc:     loc,
		ui:      ui,
		log:     env.Log.Named("auth"),
	}
}

func (a *Authenticator) Login(ctx context.Context) error {
	cfg := a.env.Config
	t := a.env.Timeouts

	fmt.Printf(T("login_navigating")+"\n", cfg.PortalURL)
	if err := a.browser.Navigate(ctx, cfg.PortalURL, t.Long); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	username, password, err := a.credentials(ctx)
	if err != nil {
		return err
	}

	if err := a.fillCredential(ctx, "username", usernameSelectors, username); err != nil {
		return err
	}
	if err := a.fillCredential(ctx, "password", passwordSelectors, password); err != nil {
		return err
	}

	checkbox, err := a.loc.Locate(ctx, "understand checkbox", understandSelectors, t.Default)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if !a.ui.IsChecked(checkbox) && !a.ui.Click(checkbox, "understand checkbox") {
		return fmt.Errorf("%w: could not tick the acknowledgement checkbox", ErrAuthFailed)
	}
	fmt.Println(T("login_form_filled"))

	loginButton, err := a.loc.Locate(ctx, "login button", loginSelectors, t.Default)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if !a.ui.Click(loginButton, "login button") {
		return fmt.Errorf("%w: login button rejected the click", ErrAuthFailed)
	}
	fmt.Println(T("login_submitted"))

	return a.verifyTwoFactor(ctx)
}

func (a *Authenticator) credentials(ctx context.Context) (string, string, error) {
	username, password := a.env.Config.FDAUsername, a.env.Config.FDAPassword
	var err error
	if username == "" {
		if username, err = a.env.Prompt.ReadLine(ctx, T("login_username_prompt")); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if password, err = a.env.Prompt.ReadSecret(ctx, T("login_password_prompt")); err != nil {
			return "", "", err
		}
	}
	if username == "" || password == "" {
		return "", "", fmt.Errorf("%w: missing credentials", ErrAuthFailed)
	}
	return username, password, nil
}

func (a *Authenticator) fillCredential(ctx context.Context, name string, selectors []string, value string) error {
	el, err := a.loc.LocatePresent(ctx, name+" field", selectors, a.env.Timeouts.Default)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	a.ui.ClearField(el)
	if err := el.Input(value); err != nil {
		return fmt.Errorf("%w: failed to type %s: %v", ErrAuthFailed, name, err)
	}
	return nil
}

func (a *Authenticator) verifyTwoFactor(ctx context.Context) error {
	t := a.env.Timeouts
	fmt.Println(T("otp_waiting_page"))

	otpField, err := a.loc.LocatePresent(ctx, "one-time password field", otpInputSelectors, t.Long)
	if err != nil {
		a.env.Shots.Error(a.browser.Capturable(), "otp_page_missing", err)
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	otpURL := a.browser.CurrentURL()

	if a.env.Config.OTPMode == OTPModeBrowser {
		return a.waitForBrowserCode(ctx, otpURL)
	}

	for i := 1; i <= maxTerminalCodeAttempts; i++ {
		code, err := a.promptCode(ctx)
		if err != nil {
			return err
		}

		a.ui.ClearField(otpField)
		if err := otpField.Input(code); err != nil {
			return fmt.Errorf("%w: failed to type code: %v", ErrAuthFailed, err)
		}

		confirm, err := a.loc.Locate(ctx, "confirm login button", otpConfirmSelectors, t.Default)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		if !a.ui.Click(confirm, "confirm login button") {
			return fmt.Errorf("%w: confirm button rejected the click", ErrAuthFailed)
		}
		fmt.Println(T("otp_submitted"))

		if err := sleepCtx(ctx, t.Navigation); err != nil {
			return err
		}
		outcome, err := a.observe(ctx, otpURL)
		if err != nil || outcome != TwoFactorInvalidCode {
			a.log.Info("two-factor code accepted", zap.Int("attempt", i))
			return nil
		}

		fmt.Println(T("otp_invalid"))
		a.log.Warn("two-factor code rejected", zap.Int("attempt", i))
	}
	return fmt.Errorf("%w: code rejected %d times", ErrAuthFailed, maxTerminalCodeAttempts)
}

func (a *Authenticator) promptCode(ctx context.Context) (string, error) {
	for {
		code, err := a.env.Prompt.ReadLine(ctx, T("otp_prompt"))
		if err != nil {
			return "", err
		}
		if code = strings.TrimSpace(code); code != "" {
			return code, nil
		}
	}
}

func (a *Authenticator) waitForBrowserCode(ctx context.Context, otpURL string) error {
	cfg := a.env.Config
	fmt.Printf(T("otp_browser_instructions")+"\n", cfg.OTPTimeoutMinutes)

	poller := &TwoFactorPoller{
		Interval: seconds(cfg.OTPPollSeconds),
		Timeout:  time.Duration(cfg.OTPTimeoutMinutes) * time.Minute,
		Observe: func(ctx context.Context) (TwoFactorOutcome, error) {
			return a.observe(ctx, otpURL)
		},
		OnInvalid: func(count int) {
			a.log.Warn("two-factor code rejected in browser", zap.Int("count", count))
		},
	}

	outcome, err := poller.Wait(ctx)
	switch outcome {
	case TwoFactorSuccess:
		fmt.Println(T("otp_browser_success"))
		return nil
	case TwoFactorTimeout:
		fmt.Println(T("otp_browser_timeout"))
		a.env.Shots.Error(a.browser.Capturable(), "otp_timeout", err)
		return err
	default:
		return err
	}
}

func (a *Authenticator) observe(ctx context.Context, otpURL string) (TwoFactorOutcome, error) {
	page := a.browser.Page()
	if page == nil {
		return TwoFactorPending, fmt.Errorf("browser not initialized")
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return TwoFactorPending, err
	}
	body, err := page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ''`)
	if err != nil {
		return TwoFactorPending, err
	}
	return classifyTwoFactorPage(otpURL, info.URL, body.Value.Str()), nil
}
