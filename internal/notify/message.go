// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

// Package notify delivers account emails for the auth service.
//
// A Notifier renders messages and hands them to a Sender. Senders are
// composable: the SMTP, AMQP and log transports sit at the bottom, and
// RetrySender and ThrottleSender wrap any of them.
package notify

import (
	"bytes"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"

	"github.com/samber/oops"
)

// Kind identifies the purpose of a message.
type Kind string

// Message kinds.
const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "password_reset"
	KindWelcome       Kind = "welcome"
)

// Message is a rendered email ready for a transport.
type Message struct {
	Kind    Kind   `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Link paths appended to the configured base URL.
const (
	VerifyEmailPath   = "/verify-email"
	ResetPasswordPath = "/reset-password"
)

type templateSet struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

type templateData struct {
	FullName string
	Link     string
}

var templates = map[Kind]templateSet{
	KindVerification: {
		subject: "Verify your email address",
		text: texttemplate.Must(texttemplate.New("verification").Parse(
			"Hi {{.FullName}},\n\nConfirm your email address to activate your account:\n{{.Link}}\n")),
		html: htmltemplate.Must(htmltemplate.New("verification").Parse(
			`<p>Hi {{.FullName}},</p><p>Confirm your email address to activate your account:</p><p><a href="{{.Link}}">Verify email</a></p>`)),
	},
	KindPasswordReset: {
		subject: "Reset your password",
		text: texttemplate.Must(texttemplate.New("reset").Parse(
			"Hi {{.FullName}},\n\nUse the link below to choose a new password:\n{{.Link}}\n\nIf you did not ask for this, you can ignore this email.\n")),
		html: htmltemplate.Must(htmltemplate.New("reset").Parse(
			`<p>Hi {{.FullName}},</p><p>Use the link below to choose a new password:</p><p><a href="{{.Link}}">Reset password</a></p><p>If you did not ask for this, you can ignore this email.</p>`)),
	},
	KindWelcome: {
		subject: "Welcome to Storefront",
		text: texttemplate.Must(texttemplate.New("welcome").Parse(
			"Hi {{.FullName}},\n\nYour email is verified and your account is ready.\n")),
		html: htmltemplate.Must(htmltemplate.New("welcome").Parse(
			`<p>Hi {{.FullName}},</p><p>Your email is verified and your account is ready.</p>`)),
	},
}

// render builds the message of the given kind. link may be empty.
func render(kind Kind, to, fullName, link string) (Message, error) {
	set, ok := templates[kind]
	if !ok {
		return Message{}, oops.Code("NOTIFY_UNKNOWN_KIND").With("kind", string(kind)).Errorf("unknown message kind")
	}
	data := templateData{FullName: fullName, Link: link}

	var text, html bytes.Buffer
	if err := set.text.Execute(&text, data); err != nil {
		return Message{}, oops.Code("NOTIFY_RENDER_FAILED").With("kind", string(kind)).Wrap(err)
	}
	if err := set.html.Execute(&html, data); err != nil {
		return Message{}, oops.Code("NOTIFY_RENDER_FAILED").With("kind", string(kind)).Wrap(err)
	}
	return Message{Kind: kind, To: to, Subject: set.subject, Text: text.String(), HTML: html.String()}, nil
}

// tokenLink joins base, path and the token query parameter.
func tokenLink(base *url.URL, path, token string) string {
	u := *base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}
