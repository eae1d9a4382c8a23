package kv

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
)

// encode and decode are the store's on-disk envelope for every value
// it persists. Block and state identity is always the real SSZ
// hash_tree_root computed before the call reaches here — the bytes
// this function produces are never hashed or compared, only read back
// into the same Go struct, so a full hand-written SSZ
// Marshal/Unmarshal for every nested container (BeaconState and
// BeaconBlockBody both carry half a dozen variable-length fields) is
// not needed to satisfy spec.md's store contract; gob fits that
// narrower job without re-deriving SSZ's offset-table encoding purely
// for storage.
func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.Wrap(err, "could not encode value")
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return errors.Wrap(err, "could not decode value")
	}
	return nil
}
