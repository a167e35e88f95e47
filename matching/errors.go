package matching

import "github.com/pkg/errors"

// ErrPoolExhausted is fatal (spec.md §7): capacity is a deployment
// decision, so the engine does not degrade to heap allocation mid-run.
var ErrPoolExhausted = errors.New("matching: order pool exhausted")

// ErrEngineStopped is returned by Submit* calls made after Stop.
var ErrEngineStopped = errors.New("matching: engine stopped")
