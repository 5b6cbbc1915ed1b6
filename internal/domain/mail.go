package domain

const (
	MailWelcome       = "welcome"
	MailNewAccount    = "new_account"
	MailResetPassword = "reset_password"
	MailChangeEmail   = "change_email"
)

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

type WelcomeMailData struct {
	FullName  string `json:"fullName"`
	Matricula string `json:"matricula"`
}

type NewAccountMailData struct {
	FullName  string `json:"fullName"`
	Matricula string `json:"matricula"`
	Password  string `json:"password"`
}

type ResetPasswordMailData struct {
	FullName   string `json:"fullName"`
	OTP        string `json:"otp"`
	Expiration int    `json:"expiration"`
}

type ChangeEmailMailData struct {
	FullName   string `json:"fullName"`
	OTP        string `json:"otp"`
	Expiration int    `json:"expiration"`
}
