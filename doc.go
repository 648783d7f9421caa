// Package authkit implements the credential and session lifecycle for a web
// application: password and passwordless (OTP) registration and login, signed
// access/refresh token pairs with rotation, single-use email verification
// tokens, and password reset.
//
// The package is store-agnostic. All persistence goes through the
// [CredentialStore] interface; a durable GORM-backed implementation lives in
// stores/gorm, a Cloud Datastore implementation in stores/gae, and a
// process-lifetime in-memory fallback in stores. The [AuthFlow] controller
// orchestrates the managers ([OTPManager], [VerificationTokenManager],
// [TokenIssuer], [EmailGate]) into the user-facing flows, and [AuthHandlers]
// exposes them over HTTP.
//
// Typical setup:
//
//	store := stores.NewMemoryCredentialStore()
//	flow := authkit.NewAuthFlow(store, "my-jwt-secret")
//	flow.EmailSender = &authkit.ConsoleEmailSender{}
//	flow.BaseURL = "http://localhost:8080"
//	http.ListenAndServe(":8080", authkit.NewAuthService("MyApp", flow).Handler())
package authkit
