// Package internal holds the input helpers shared by the checkout routes.
package internal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	EmailRegexTemplate = `^[\w.\+\.\-]+@([\w\-]+\.)+[\w]{2,}$`
	// DefaultPhoneCountry is the region assumed for numbers without an
	// international prefix. Razorpay customers are Indian.
	DefaultPhoneCountry = "IN"
)

var emailRegex = regexp.MustCompile(EmailRegexTemplate)

// ValidEmail helper function allows to validate an email address.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(strings.TrimSpace(email))
}

// SanitizePhoneNumber validates a phone number and returns it in E.164
// format. Numbers without an international prefix are parsed in the
// defaultRegion, or DefaultPhoneCountry when it is empty.
func SanitizePhoneNumber(phone, defaultRegion string) (string, error) {
	if defaultRegion == "" {
		defaultRegion = DefaultPhoneCountry
	}
	pn, err := phonenumbers.Parse(phone, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("invalid phone number %s: %w", phone, err)
	}
	if !phonenumbers.IsValidNumber(pn) {
		return "", fmt.Errorf("invalid phone number %s", phone)
	}
	return phonenumbers.Format(pn, phonenumbers.E164), nil
}
