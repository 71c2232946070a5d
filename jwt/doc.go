// Package jwt manages signed session-token issuance and verification: access and
// refresh tokens with typed claims, clock-skew leeway, and optional issuer/audience
// enforcement.
package jwt
