package journal

import "errors"

// Multi fans every write out to all of its journals. All journals are
// written even when one fails; the first error is returned.
type Multi []Journal

func (m Multi) RecordTrade(t TradeRecord) error {
	var first error
	for _, j := range m {
		if err := j.RecordTrade(t); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) RecordEquity(e EquitySample) error {
	var first error
	for _, j := range m {
		if err := j.RecordEquity(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Reset resets every member that supports it.
func (m Multi) Reset() error {
	var errs []error
	for _, j := range m {
		if r, ok := j.(Resetter); ok {
			if err := r.Reset(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		if err := j.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
