//go:build !govips || !cgo

package engine

func Startup(RuntimeConfig) error { return nil }

func Shutdown() {}

func newCodec() (Codec, error) {
	return stdCodec{}, nil
}
