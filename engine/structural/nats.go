package structural

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/greenresilience/orchestration/pkg/natsutil"
)

// DefaultSubjectPrefix namespaces the module subjects:
// resilience.engine.hazard, .response and .damage.
const DefaultSubjectPrefix = "resilience.engine"

// Subject returns the request subject for a module.
func Subject(prefix, module string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + module
}

type natsTransport struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSEngine builds an Engine that sends each module call as a NATS
// request. Call deadlines come from the caller's context.
func NewNATSEngine(nc *nats.Conn, prefix string, opts ClientOpts) *Client {
	return NewClient(&natsTransport{nc: nc, prefix: prefix}, opts)
}

func (t *natsTransport) Call(ctx context.Context, module string, in, out any) error {
	raw, err := natsutil.Request[any, json.RawMessage](ctx, t.nc, Subject(t.prefix, module), in)
	if err != nil {
		var re *natsutil.RemoteError
		if errors.As(err, &re) {
			return &ModuleError{Module: module, Msg: re.Msg}
		}
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ModuleError{Module: module, Msg: "decode output: " + err.Error()}
	}
	return nil
}

// Serve answers module requests on NATS by delegating to eng, so an exec
// engine on one host can serve pipelines elsewhere. Workers sharing a queue
// group split the load.
func Serve(nc *nats.Conn, prefix, queue string, eng Engine) ([]*nats.Subscription, error) {
	var subs []*nats.Subscription
	add := func(sub *nats.Subscription, err error) error {
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return err
		}
		subs = append(subs, sub)
		return nil
	}
	if err := add(natsutil.Handle(nc, Subject(prefix, ModuleHazard), queue, eng.Hazard)); err != nil {
		return nil, err
	}
	if err := add(natsutil.Handle(nc, Subject(prefix, ModuleResponse), queue, eng.Response)); err != nil {
		return nil, err
	}
	if err := add(natsutil.Handle(nc, Subject(prefix, ModuleDamage), queue, eng.Damage)); err != nil {
		return nil, err
	}
	return subs, nil
}
