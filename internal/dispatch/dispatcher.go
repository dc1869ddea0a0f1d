// Package dispatch resolves inbound requests against the route tables,
// binds arguments, invokes handlers and serializes their results.
package dispatch

import (
	"context"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/toyz/loom/internal/routing"
)

// State is the position of a request in the dispatch state machine
type State int

const (
	StateNew State = iota
	StateMatched
	StateArgumentsBound
	StateInvoked
	StateSerialized
	StateUnmatched
)

// String returns the state name used in logs and metrics
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateMatched:
		return "matched"
	case StateArgumentsBound:
		return "arguments_bound"
	case StateInvoked:
		return "invoked"
	case StateSerialized:
		return "serialized"
	case StateUnmatched:
		return "unmatched"
	default:
		return "unknown"
	}
}

// Request is the transport-neutral inbound request
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Body     []byte
	Context  context.Context
}

// Result is the outcome of one dispatch. State is the last state reached.
type Result struct {
	State   State
	Payload []byte
	Status  int    // set when the handler returned a StatusCarrier
	Route   string // matched route key, empty when unmatched
	Handler string
}

// StatusCarrier lets a handler choose the response status and body
type StatusCarrier interface {
	StatusCode() int
	ResponseBody() any
}

// Observer receives one notification per dispatched request
type Observer interface {
	ObserveDispatch(route string, state State, elapsed time.Duration)
}

type requestIDKey struct{}

// WithRequestID stores the request id used in dispatch logs
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored by WithRequestID
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Dispatcher serves requests from a frozen route registry
type Dispatcher struct {
	routes   *routing.Registry
	logger   logrus.FieldLogger
	observer Observer
}

// New creates a dispatcher. logger and observer may be nil.
func New(routes *routing.Registry, logger logrus.FieldLogger, observer Observer) *Dispatcher {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Dispatcher{routes: routes, logger: logger, observer: observer}
}

// Dispatch runs the state machine for req. An unmatched request returns
// StateUnmatched with an empty payload and a nil error. Handler failures
// come back as *errors.ArgumentCoercionError or *errors.InvocationError.
func (d *Dispatcher) Dispatch(req Request) (Result, error) {
	start := time.Now()
	result := Result{State: StateNew}
	defer func() {
		if d.observer != nil {
			d.observer.ObserveDispatch(result.Route, result.State, time.Since(start))
		}
	}()

	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}
	verb := strings.ToUpper(req.Method)

	match, ok := d.routes.Lookup(verb, req.Path, req.RawQuery)
	if !ok {
		result.State = StateUnmatched
		return result, nil
	}
	handler, ok := match.Entry.Target.(*Handler)
	if !ok {
		result.State = StateUnmatched
		return result, nil
	}
	result.State = StateMatched
	result.Route = match.Entry.Key
	result.Handler = handler.Name

	log := d.logger.WithFields(logrus.Fields{
		"method":     verb,
		"path":       req.Path,
		"route":      match.Entry.Key,
		"request_id": RequestID(ctx),
	})

	args, err := handler.bind(ctx, match.Values, req.Body)
	if err != nil {
		log.WithError(err).Warn("cannot bind request arguments")
		return result, err
	}
	result.State = StateArgumentsBound

	value, err := handler.invoke(args)
	if err != nil {
		log.WithError(err).Error("handler failed")
		return result, err
	}
	result.State = StateInvoked

	payload, status, err := handler.encode(value)
	if err != nil {
		log.WithError(err).Error("handler result cannot be serialized")
		return result, err
	}
	result.Payload = payload
	result.Status = status
	result.State = StateSerialized
	return result, nil
}

// serialize encodes a handler result as indented JSON
func serialize(value any, hasValue bool) ([]byte, int, error) {
	if !hasValue {
		return nil, 0, nil
	}

	status := 0
	if carrier, ok := value.(StatusCarrier); ok && !isNilPointer(value) {
		status = carrier.StatusCode()
		value = carrier.ResponseBody()
		if value == nil {
			return nil, status, nil
		}
	}

	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, 0, err
	}
	return payload, status, nil
}

func isNilPointer(value any) bool {
	v := reflect.ValueOf(value)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
