package vmm

import "context"

// Bridge moves actions and responses between the API half and the
// dispatcher half of the process. Both channels have depth 1 and a
// new request may only be submitted once the previous response has
// been consumed, so at most one action is ever in flight.
type Bridge struct {
	requests  chan Action
	responses chan Response
}

func NewBridge() *Bridge {
	return &Bridge{
		requests:  make(chan Action, 1),
		responses: make(chan Response, 1),
	}
}

// Submit queues one action for the dispatcher. It blocks while a
// previous request still occupies the slot.
func (b *Bridge) Submit(ctx context.Context, action Action) error {
	select {
	case b.requests <- action:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitResponse blocks until the dispatcher produces the response for
// the in-flight request.
func (b *Bridge) AwaitResponse(ctx context.Context) (Response, error) {
	select {
	case response := <-b.responses:
		return response, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Call submits one action and waits for its response.
func (b *Bridge) Call(ctx context.Context, action Action) (Response, error) {
	err := b.Submit(ctx, action)
	if err != nil {
		return Response{}, err
	}
	return b.AwaitResponse(ctx)
}

// Close ends the producer side. The dispatcher treats a closed
// request channel as the control plane having died.
func (b *Bridge) Close() {
	close(b.requests)
}

// poll drains at most one pending action without blocking. closed
// reports that the producer side has disconnected.
func (b *Bridge) poll() (action Action, ok bool, closed bool) {
	select {
	case action, ok = <-b.requests:
		if !ok {
			return nil, false, true
		}
		return action, true, false
	default:
		return nil, false, false
	}
}

func (b *Bridge) respond(response Response) {
	b.responses <- response
}
