package authkit

import "log"

// EmailSender is the outbound delivery boundary. Verification email during
// registration is best-effort (failures are logged, not propagated); OTP
// delivery is required and failures surface to the caller, since the user
// cannot proceed without the code.
type EmailSender interface {
	SendVerificationEmail(to, name, verificationLink string) error
	SendOTPEmail(to, name, code string) error
	SendPasswordResetEmail(to, name, resetLink string) error
}

// ConsoleEmailSender is a development implementation that logs emails to console
type ConsoleEmailSender struct{}

func (c *ConsoleEmailSender) SendVerificationEmail(to, name, verificationLink string) error {
	log.Printf("\n=== EMAIL: Verification ===")
	log.Printf("To: %s <%s>", name, to)
	log.Printf("Subject: Verify your email address")
	log.Printf("Body: Please verify your email by clicking: %s", verificationLink)
	log.Printf("===========================\n")
	return nil
}

func (c *ConsoleEmailSender) SendOTPEmail(to, name, code string) error {
	log.Printf("\n=== EMAIL: One-time code ===")
	log.Printf("To: %s <%s>", name, to)
	log.Printf("Subject: Your login code")
	log.Printf("Body: Your one-time login code is %s. It expires in 5 minutes.", code)
	log.Printf("============================\n")
	return nil
}

func (c *ConsoleEmailSender) SendPasswordResetEmail(to, name, resetLink string) error {
	log.Printf("\n=== EMAIL: Password Reset ===")
	log.Printf("To: %s <%s>", name, to)
	log.Printf("Subject: Reset your password")
	log.Printf("Body: Reset your password by clicking: %s", resetLink)
	log.Printf("==============================\n")
	return nil
}
