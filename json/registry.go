package json

import (
	"sync"

	"github.com/Velocidex/json"
)

var (
	mu       sync.Mutex
	encoders = []customEncoder{}
)

type customEncoder struct {
	sample interface{}
	cb     json.EncoderCallback
}

// Register an encoder for the type of sample. Call from init().
func RegisterCustomEncoder(sample interface{}, cb json.EncoderCallback) {
	mu.Lock()
	defer mu.Unlock()

	encoders = append(encoders, customEncoder{sample: sample, cb: cb})
}

// Fresh options carrying every registered encoder.
func NewEncOpts() *json.EncOpts {
	mu.Lock()
	defer mu.Unlock()

	opts := json.NewEncOpts()
	for _, e := range encoders {
		opts.WithCallback(e.sample, e.cb)
	}
	return opts
}
