package publisher

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ValidateHash checks that a content hash returned by the pinning service
// parses as a CID. A locator built from an unparseable hash would never
// dereference, so the failure is caught here rather than at catalog time.
func ValidateHash(hash string) error {
	if _, err := cid.Decode(hash); err != nil {
		return fmt.Errorf("invalid content hash %q: %w", hash, err)
	}
	return nil
}

// SumCID returns a CIDv1 string (raw multicodec, sha2-256 multihash) for
// the given bytes. Used by the in-memory content store fixtures to mint
// locators with the same shape real pinning produces.
func SumCID(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum with SHA2_256 and default length cannot fail.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}
