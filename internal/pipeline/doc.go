// Package pipeline authenticates requests by running a fixed, ordered chain
// of stages over an immutable RequestContext. The first stage to fail ends the
// chain with an auth.Rejection; a request that passes every stage is forwarded.
package pipeline
