package events

import "errors"

// Routes maps an event type to the handlers subscribed at startup.
type Routes map[Type][]Handler

// SubscribeAll registers every route once during startup. On failure the
// subscriptions made so far are undone.
func SubscribeAll(bus Bus, routes Routes) (Unsubscribe, error) {
	var subs []Unsubscribe
	unsubscribeAll := func() error {
		var errs []error
		for _, u := range subs {
			errs = append(errs, u())
		}
		return errors.Join(errs...)
	}

	for t, handlers := range routes {
		for _, h := range handlers {
			u, err := bus.Subscribe(t, h)
			if err != nil {
				_ = unsubscribeAll()
				return nil, err
			}
			subs = append(subs, u)
		}
	}
	return unsubscribeAll, nil
}
