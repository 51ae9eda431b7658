package mailer

import (
	"bytes"
	htmltemplate "html/template"
	"text/template"
)

type content struct {
	Name string
	Link string
}

type layout struct {
	subject string
	text    *template.Template
	html    *htmltemplate.Template
}

var (
	verificationLayout = newLayout("Verify your email address",
		`Please confirm your email address by opening the link below.

{{.Link}}

The link expires shortly. If you did not sign up, ignore this email.
`,
		`<p>Please confirm your email address.</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>The link expires shortly. If you did not sign up, ignore this email.</p>
`)

	resetLayout = newLayout("Reset your password",
		`Someone asked to reset the password for your account. Open the link below to choose a new one.

{{.Link}}

If this was not you, ignore this email.
`,
		`<p>Someone asked to reset the password for your account.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>If this was not you, ignore this email.</p>
`)

	welcomeLayout = newLayout("Welcome to DocLinker",
		`Hi {{.Name}},

your account is ready. Check your inbox for the link that confirms your email address.
`,
		`<p>Hi {{.Name}},</p>
<p>your account is ready. Check your inbox for the link that confirms your email address.</p>
`)
)

func newLayout(subject, text, html string) layout {
	return layout{
		subject: subject,
		text:    template.Must(template.New("text").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New("html").Parse(html)),
	}
}

func (l layout) render(to string, c content) (Message, error) {
	var text, html bytes.Buffer
	if err := l.text.Execute(&text, c); err != nil {
		return Message{}, err
	}
	if err := l.html.Execute(&html, c); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: l.subject, Text: text.String(), HTML: html.String()}, nil
}

// VerificationEmail asks the recipient to open link.
func VerificationEmail(to, link string) (Message, error) {
	return verificationLayout.render(to, content{Link: link})
}

// PasswordResetEmail carries a password reset link.
func PasswordResetEmail(to, link string) (Message, error) {
	return resetLayout.render(to, content{Link: link})
}

// WelcomeEmail greets a new user by name.
func WelcomeEmail(to, name string) (Message, error) {
	return welcomeLayout.render(to, content{Name: name})
}
