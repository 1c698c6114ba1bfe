package users

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/keyxmakerx/userdir/internal/sanitize"
)

// Validate checks a user form and returns field -> message for every
// problem found. An empty map means the input is valid. Name is checked
// after sanitizing, so markup-only names count as empty.
func Validate(name, email, password string, requirePassword bool) map[string]string {
	fields := map[string]string{}

	cleanName := sanitize.Text(name)
	switch {
	case cleanName == "":
		fields["name"] = "name is required"
	case utf8.RuneCountInString(cleanName) > maxNameLen:
		fields["name"] = "name must be at most 100 characters"
	}

	email = strings.TrimSpace(email)
	switch {
	case email == "":
		fields["email"] = "email is required"
	case len(email) > maxEmailLen:
		fields["email"] = "email must be at most 255 characters"
	case !isPlainAddress(email):
		fields["email"] = "email is not a valid address"
	}

	switch {
	case password == "" && requirePassword:
		fields["password"] = "password is required"
	case len(password) > maxPasswordBytes:
		fields["password"] = "password must be at most 72 bytes"
	}

	return fields
}

// isPlainAddress accepts a bare address like "ada@example.com" and rejects
// display-name forms such as "Ada <ada@example.com>".
func isPlainAddress(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
