package main

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/wneessen/go-mail"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type mailKind struct {
	template string
	subject  string
	data     func() any
}

var mailKinds = map[string]mailKind{
	domain.MailWelcome: {
		template: "welcome.html",
		subject:  "Tutorías - Bienvenida",
		data:     func() any { return &domain.WelcomeMailData{} },
	},
	domain.MailNewAccount: {
		template: "new_account.html",
		subject:  "Tutorías - Datos de tu cuenta",
		data:     func() any { return &domain.NewAccountMailData{} },
	},
	domain.MailResetPassword: {
		template: "reset_password.html",
		subject:  "Tutorías - Restablecer contraseña",
		data:     func() any { return &domain.ResetPasswordMailData{} },
	},
	domain.MailChangeEmail: {
		template: "change_email.html",
		subject:  "Tutorías - Confirmar correo",
		data:     func() any { return &domain.ChangeEmailMailData{} },
	},
}

// buildMessage renders a queued mail message into an SMTP message.
func buildMessage(from, typ, to string, raw json.RawMessage) (*mail.Msg, error) {
	kind, ok := mailKinds[typ]
	if !ok {
		return nil, fmt.Errorf("unsupported mail type %q", typ)
	}

	data := kind.data()
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("decode %s data: %w", typ, err)
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject(kind.subject)

	if err := msg.SetBodyHTMLTemplate(templates.Lookup(kind.template), data); err != nil {
		return nil, err
	}

	return msg, nil
}
