package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

type EventBus interface {
	Publish(args ...any)
	PublishE(args ...any) error
	Subscribe(handler any)
	SubscribersCount() int
}

var (
	ErrNoSubscribers        = errors.New("eventbus: no matching subscribers")
	ErrInvalidHandlerReturn = errors.New("eventbus: invalid handler return signature")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type publisher struct {
	log *logrus.Logger

	mu       sync.RWMutex
	handlers []reflect.Value
}

func NewEventPublisher(log *logrus.Logger) EventBus {
	return &publisher{log: log}
}

// MatchSignature reports whether handler can be called with args.
func MatchSignature(handler any, args []any) bool {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func || t.NumIn() != len(args) {
		return false
	}
	for i, arg := range args {
		param := t.In(i)
		if arg == nil {
			if param.Kind() != reflect.Interface && param.Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		if !reflect.TypeOf(arg).AssignableTo(param) {
			return false
		}
	}
	return true
}

func (p *publisher) matching(args []any) []reflect.Value {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]reflect.Value, 0, len(p.handlers))
	for _, h := range p.handlers {
		if MatchSignature(h.Interface(), args) {
			out = append(out, h)
		}
	}
	return out
}

func callArgs(handler reflect.Value, args []any) []reflect.Value {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Zero(handler.Type().In(i))
			continue
		}
		in[i] = reflect.ValueOf(arg)
	}
	return in
}

// Publish delivers args to every matching handler. Handler panics are logged
// and do not stop delivery to the remaining handlers.
func (p *publisher) Publish(args ...any) {
	handlers := p.matching(args)
	if len(handlers) == 0 {
		if p.log != nil {
			p.log.Warnf("eventbus.Publish: no matching subscribers for event with args: %v", args)
		}
		return
	}
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil && p.log != nil {
					p.log.Errorf("eventbus: handler %s panicked with args %v: %v", h.Type().String(), args, r)
				}
			}()
			h.Call(callArgs(h, args))
		}()
	}
}

// PublishE is Publish that collects handler errors and panics.
func (p *publisher) PublishE(args ...any) error {
	handlers := p.matching(args)
	if len(handlers) == 0 {
		return ErrNoSubscribers
	}

	var errs []error
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					errs = append(errs, fmt.Errorf("eventbus: handler %s panicked: %v", h.Type().String(), r))
				}
			}()
			out := h.Call(callArgs(h, args))
			switch {
			case len(out) == 0:
			case len(out) == 1 && out[0].Type() == errorType:
				if !out[0].IsNil() {
					errs = append(errs, out[0].Interface().(error))
				}
			default:
				errs = append(errs, fmt.Errorf("%w: handler %s", ErrInvalidHandlerReturn, h.Type().String()))
			}
		}()
	}
	return errors.Join(errs...)
}

func (p *publisher) Subscribe(handler any) {
	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func {
		panic("handler must be a function")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, v)
}

func (p *publisher) SubscribersCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handlers)
}
