package mailer

import (
	"context"
	"fmt"
	"net/url"
)

func (m *Mailer) SendVerificationEmail(ctx context.Context, name, email, token string) error {
	link := fmt.Sprintf("%s/user/verify-email?token=%s&email=%s", m.origin, url.QueryEscape(token), url.QueryEscape(email))
	body := fmt.Sprintf(`<h4>Hello, %s</h4>
<p>Please confirm your email by clicking on the following link: <a href="%s">Verify Email</a></p>`, name, link)
	return m.send(ctx, Email{To: email, Subject: "Email Confirmation", HTMLBody: body})
}

func (m *Mailer) SendVerificationSuccessEmail(ctx context.Context, name, email string) error {
	body := fmt.Sprintf(`<h4>Dear %s</h4> <p>your email verification was succesful.</p> <p>Thanks for using our service</p>`, name)
	return m.send(ctx, Email{To: email, Subject: "Email Confirmation Successful", HTMLBody: body})
}

func (m *Mailer) SendResetPasswordEmail(ctx context.Context, name, email, token string) error {
	link := fmt.Sprintf("%s/user/reset-password?token=%s&email=%s", m.origin, url.QueryEscape(token), url.QueryEscape(email))
	body := fmt.Sprintf(`<h4>Hello, %s</h4>
<p>Please reset password by clicking on the following link: <a href="%s">Reset Password</a></p><p>Please note that this is valid for only 10 minutes only</p>`, name, link)
	return m.send(ctx, Email{To: email, Subject: "Reset Password", HTMLBody: body})
}
