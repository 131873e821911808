package offload

import (
	"github.com/lithammer/shortuuid"

	"github.com/grussorusso/offloadledge/internal/bus"
	"github.com/grussorusso/offloadledge/internal/platform"
)

// Request is one offload event. It is passed by value through the handling
// pipeline and never shared between handlers.
type Request struct {
	ID           string
	Source       platform.Platform
	Operation    string
	Code         string
	ResourceName string
	Params       string
}

// RequestFromArgs decodes an offload event: (source, operationName, code,
// resourceName, params). Missing trailing arguments are empty.
func RequestFromArgs(args bus.Args) Request {
	return Request{
		ID:           shortuuid.New(),
		Source:       platform.Parse(args.String(0)),
		Operation:    args.String(1),
		Code:         args.String(2),
		ResourceName: args.String(3),
		Params:       args.String(4),
	}
}

// ExecutionResult is what one offload produced. Output is already normalized.
type ExecutionResult struct {
	ClassID     string
	Success     bool
	Output      string
	Duration    float64
	Diagnostics string
	CacheHit    bool
}

// EmptyOutput replaces an empty program output in published results.
const EmptyOutput = "nothing"

func NormalizeOutput(output string) string {
	if output == "" {
		return EmptyOutput
	}
	return output
}
