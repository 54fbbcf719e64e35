package vmm

import "github.com/emberhq/ember/pkg/vmconfig"

// Response is the single reply produced for every accepted action:
// an empty acknowledgment, a machine configuration snapshot, or a
// typed error.
type Response struct {
	Config *vmconfig.Config
	Err    error
}

func emptyResponse() Response {
	return Response{}
}

func configResponse(config vmconfig.Config) Response {
	return Response{Config: &config}
}

func errorResponse(err error) Response {
	return Response{Err: err}
}

// Ok reports whether the action succeeded.
func (r Response) Ok() bool {
	return r.Err == nil
}

// String renders the response for logs.
func (r Response) String() string {
	switch {
	case r.Err != nil:
		return "error: " + r.Err.Error()
	case r.Config != nil:
		return "vm configuration"
	default:
		return "ok"
	}
}
