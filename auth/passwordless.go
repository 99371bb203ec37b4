package auth

import (
	"context"
	"io"

	"github.com/johnsto/go-passwordless"
)

func (a *Auth) getTransport() string {
	if a.Environment == EnvProduction {
		return "Email"
	}
	return "Log"
}

// Request will send a link to email with the login token
func (a *Auth) Request(ctx context.Context, uid, recipient string) error {
	return a.pw.RequestToken(ctx, a.getTransport(), uid, recipient)
}

// Verify checks if the login token is valid and corresonds to the user
func (a *Auth) Verify(ctx context.Context, uid, token string) (bool, error) {
	valid, err := a.pw.VerifyToken(ctx, uid, token)
	switch err {
	case passwordless.ErrNoResponseWriter, passwordless.ErrNoStore, passwordless.ErrNoTransport, passwordless.ErrNotValidForContext:
		return valid, err
	default:
		return valid, nil
	}
}

func composeFuncGetter(options EmailOption) passwordless.ComposerFunc {
	return func(ctx context.Context, token, uid, recipient string, w io.Writer) error {
		e := &passwordless.Email{
			Subject: "Sign in to " + options.Name,
			To:      recipient,
		}

		link := options.LinkGenerator(uid, token)

		text := "Someone asked to sign in to " + options.Name + " with this " +
			"email address.\n\n" +
			"Your sign-in code is " + token + " (expires in 15 minutes), or open " +
			"this link to pick up where you left off with your orders and " +
			"listings: " + link + "\n\n" +
			"If this wasn't you, no action is needed and your account stays as is."
		html := "<!doctype html><html><body>" +
			"<p>Someone asked to sign in to " + options.Name + " with this " +
			"email address.</p>" +
			"<p>Your sign-in code is <b>" + token + "</b> (expires in 15 minutes), " +
			"or <a href=\"" + link + "\">continue to your orders and listings</a>.</p>" +
			"<p>If this wasn't you, no action is needed and your account stays " +
			"as is.</p></body></html>"

		e.AddBody("text/plain", text)
		e.AddBody("text/html", html)

		_, err := e.Write(w)

		return err
	}
}
