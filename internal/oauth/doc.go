// Package oauth implements single sign-on with Google and Facebook.
//
// The flow is stateless: the login redirect carries a short-lived HS256 JWT
// as the OAuth state parameter, binding the request to its provider with a
// random nonce. The callback verifies the state, exchanges the code and
// fetches the user's email and display name from the provider.
package oauth
