package listing

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tessella/bazaar/internal/market"
)

// validate checks the creation input and returns the normalized form.
// Runs before any network call; a failure here guarantees no side
// effects exist anywhere.
//
// Name and description are NFC-normalized so the published metadata is
// byte-stable for visually identical input, which keeps content-addressed
// locators stable too.
func validate(in Input) (Input, error) {
	in.Name = norm.NFC.String(strings.TrimSpace(in.Name))
	in.Description = norm.NFC.String(strings.TrimSpace(in.Description))

	if in.Name == "" {
		return Input{}, market.NewValidationError("name", "must not be empty")
	}
	if in.Description == "" {
		return Input{}, market.NewValidationError("description", "must not be empty")
	}
	if in.Price == nil {
		return Input{}, market.NewValidationError("price", "must be set")
	}
	if in.Price.Sign() <= 0 {
		return Input{}, market.NewValidationError("price", "must be a positive amount in minor units")
	}
	if in.Binary == nil {
		return Input{}, market.NewValidationError("binary", "must not be empty")
	}
	if in.Filename == "" {
		in.Filename = "asset"
	}
	return in, nil
}
