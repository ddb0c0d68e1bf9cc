// Package google links Google accounts through the OAuth implicit grant.
//
// Flow builds the authorization URL, parses the access token the provider
// returns in the redirect fragment, resolves the owning email through the
// userinfo endpoint and persists the credential. Tokens are short-lived and
// never refreshed; an expired account has to be linked again.
package google
