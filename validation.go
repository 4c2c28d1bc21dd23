package accounts

import (
	"fmt"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
)

// RequiredEmailDomain restricts registrations to a single email domain
// suffix. Set to "" to accept any domain.
var RequiredEmailDomain = "@gmail.com"

// PasswordSymbols are the symbols the password policy accepts.
var PasswordSymbols = "#!-_."

// ValidateStringEquals will compare the given string with the validated value
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return ErrPasswordMismatch
		}
		return nil
	}
}

// ValidateEmailDomain enforces the RequiredEmailDomain suffix.
func ValidateEmailDomain(value interface{}) error {
	if RequiredEmailDomain == "" {
		return nil
	}

	email, _ := value.(string)
	if !strings.HasSuffix(strings.ToLower(email), RequiredEmailDomain) {
		return fmt.Errorf("email must use the %s domain", RequiredEmailDomain)
	}

	return nil
}

// ValidatePasswordStrength enforces the sign up password policy: a leading
// capital letter, at least 6 characters, at least one digit, and at least
// one symbol from PasswordSymbols.
func ValidatePasswordStrength(value interface{}) error {
	password, _ := value.(string)

	runes := []rune(password)
	if len(runes) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}

	if !unicode.IsUpper(runes[0]) {
		return fmt.Errorf("password must start with a capital letter")
	}

	hasDigit := false
	hasSymbol := false
	for _, r := range runes {
		if unicode.IsDigit(r) {
			hasDigit = true
		}
		if strings.ContainsRune(PasswordSymbols, r) {
			hasSymbol = true
		}
	}

	if !hasDigit {
		return fmt.Errorf("password must contain a digit")
	}

	if !hasSymbol {
		return fmt.Errorf("password must contain one of %q", PasswordSymbols)
	}

	return nil
}
