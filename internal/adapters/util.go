package adapters

import "github.com/vmihailenco/msgpack/v5"

// unmarshalMsgpack decodes a cache blob into dst.
func unmarshalMsgpack(data []byte, dst interface{}) error {
	return msgpack.Unmarshal(data, dst)
}
