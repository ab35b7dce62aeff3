// Package auth issues and verifies the HMAC-signed bearer tokens that
// identify the owner making an API request.
package auth
