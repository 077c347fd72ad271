package email

import (
	"fmt"
	"net/smtp"
	"os"

	"inkwell/common"
)

type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
}

func NewEmailService() *EmailService {
	return &EmailService{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		user:     os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     os.Getenv("SMTP_FROM"),
	}
}

// SendVerificationCode mails the account verification code to a new user.
func (e *EmailService) SendVerificationCode(to, code string) error {
	appName := common.AppName()

	subject := fmt.Sprintf("Verify your account - %s", appName)
	body := fmt.Sprintf(`Hello!

Thanks for signing up at %s.

Your verification code is:

	%s

Enter it on the verification page to activate your account.

If you did not sign up, ignore this email.

---
%s
`, appName, code, appName)

	return e.send(to, subject, body)
}

// SendPasswordResetCode mails a password reset code.
func (e *EmailService) SendPasswordResetCode(to, code string) error {
	appName := common.AppName()

	subject := fmt.Sprintf("Password reset - %s", appName)
	body := fmt.Sprintf(`Hello!

A password reset was requested for your %s account.

Your reset code is:

	%s

If you did not request a reset, ignore this email.

---
%s
`, appName, code, appName)

	return e.send(to, subject, body)
}

func (e *EmailService) send(to, subject, body string) error {
	message := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", e.from, to, subject, body)

	auth := smtp.PlainAuth("", e.user, e.password, e.host)
	addr := fmt.Sprintf("%s:%s", e.host, e.port)

	if err := smtp.SendMail(addr, auth, e.from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("error sending email: %v", err)
	}

	return nil
}
