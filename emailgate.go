package authkit

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"
)

var emailShapeRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// defaultDisposableDomains is the maintained block-list of throwaway email
// providers rejected before any account state is created.
var defaultDisposableDomains = map[string]bool{
	"10minutemail.com":  true,
	"dispostable.com":   true,
	"fakeinbox.com":     true,
	"getairmail.com":    true,
	"getnada.com":       true,
	"guerrillamail.com": true,
	"mailcatch.com":     true,
	"maildrop.cc":       true,
	"mailinator.com":    true,
	"mintemail.com":     true,
	"mohmal.com":        true,
	"sharklasers.com":   true,
	"spamgourmet.com":   true,
	"temp-mail.org":     true,
	"tempmail.com":      true,
	"throwawaymail.com": true,
	"trashmail.com":     true,
	"yopmail.com":       true,
}

// defaultRoleLocalParts is the maintained list of role-based mailbox names
// that cannot register, since they do not identify a person.
var defaultRoleLocalParts = map[string]bool{
	"abuse":      true,
	"admin":      true,
	"billing":    true,
	"contact":    true,
	"help":       true,
	"hostmaster": true,
	"info":       true,
	"marketing":  true,
	"noreply":    true,
	"no-reply":   true,
	"office":     true,
	"postmaster": true,
	"root":       true,
	"sales":      true,
	"security":   true,
	"support":    true,
	"team":       true,
	"webmaster":  true,
}

// DeliverabilityChecker is an optional third-party check consulted after the
// local rules pass. Implementations typically call an external verification
// service.
type DeliverabilityChecker interface {
	// CheckDeliverability reports whether the mailbox appears deliverable.
	// The context carries the gate's timeout; implementations must respect it.
	CheckDeliverability(ctx context.Context, email string) (bool, error)
}

// EmailVerdict is the result of evaluating an email against the gate.
// IsDeliverable is nil when no deliverability check ran or it was
// inconclusive.
type EmailVerdict struct {
	Allowed       bool   `json:"allowed"`
	Code          string `json:"code,omitempty"`
	Reason        string `json:"reason,omitempty"`
	IsDeliverable *bool  `json:"isDeliverable,omitempty"`
}

// EmailGate validates candidate registration emails. Checks run in order:
// format, disposable domain, role-based local part, then the optional
// third-party deliverability check. A deliverability failure (service down,
// timeout) never rejects the email; availability of a third party must not
// block registration.
type EmailGate struct {
	// DisposableDomains overrides the default block-list when non-nil.
	DisposableDomains map[string]bool

	// RoleLocalParts overrides the default role-mailbox list when non-nil.
	RoleLocalParts map[string]bool

	// Deliverability is consulted only when the local checks pass. Optional.
	Deliverability DeliverabilityChecker

	// DeliverabilityTimeout bounds the external call. Defaults to 3 seconds.
	DeliverabilityTimeout time.Duration
}

func (g *EmailGate) disposableDomains() map[string]bool {
	if g != nil && g.DisposableDomains != nil {
		return g.DisposableDomains
	}
	return defaultDisposableDomains
}

func (g *EmailGate) roleLocalParts() map[string]bool {
	if g != nil && g.RoleLocalParts != nil {
		return g.RoleLocalParts
	}
	return defaultRoleLocalParts
}

func (g *EmailGate) deliverabilityTimeout() time.Duration {
	if g == nil || g.DeliverabilityTimeout <= 0 {
		return 3 * time.Second
	}
	return g.DeliverabilityTimeout
}

// Evaluate applies the gate to email. It is a pure function of the configured
// lists plus the optional external check; it creates no state.
func (g *EmailGate) Evaluate(ctx context.Context, email string) EmailVerdict {
	if !emailShapeRegex.MatchString(email) {
		return EmailVerdict{Code: ErrCodeInvalidEmail, Reason: "Invalid email format"}
	}

	at := strings.LastIndex(email, "@")
	local := strings.ToLower(email[:at])
	domain := strings.ToLower(email[at+1:])

	if g.disposableDomains()[domain] {
		return EmailVerdict{Code: ErrCodeDisposableEmail, Reason: "Disposable email addresses are not allowed"}
	}
	if g.roleLocalParts()[local] {
		return EmailVerdict{Code: ErrCodeRoleEmail, Reason: "Role-based email addresses are not allowed"}
	}

	verdict := EmailVerdict{Allowed: true}
	if g != nil && g.Deliverability != nil {
		checkCtx, cancel := context.WithTimeout(ctx, g.deliverabilityTimeout())
		defer cancel()
		deliverable, err := g.Deliverability.CheckDeliverability(checkCtx, email)
		if err != nil {
			// Unknown deliverability, still allowed.
			log.Printf("email gate: deliverability check failed for domain %s: %v", domain, err)
			return verdict
		}
		verdict.IsDeliverable = &deliverable
		if !deliverable {
			verdict.Allowed = false
			verdict.Code = ErrCodeInvalidEmail
			verdict.Reason = "Email address does not appear to be deliverable"
		}
	}
	return verdict
}

// AuthError converts a rejection verdict into the field error surfaced to
// callers. Returns nil for an allowed verdict.
func (v EmailVerdict) AuthError() *AuthError {
	if v.Allowed {
		return nil
	}
	return NewAuthError(v.Code, v.Reason, "email")
}
