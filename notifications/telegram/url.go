package telegram

import (
	"errors"
	"net/url"
)

// stripURL removes the request URL from a transport error.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
