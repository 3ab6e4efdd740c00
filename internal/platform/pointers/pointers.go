package pointers

import "time"

func Ptr[T any](v T) *T { return &v }

func String(v string) *string { return &v }

func Int(v int) *int { return &v }

func Float64(v float64) *float64 { return &v }

func Time(v time.Time) *time.Time { return &v }

// Deref returns the zero value for nil pointers.
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
