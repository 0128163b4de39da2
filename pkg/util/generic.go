package util

import "reflect"

func Must[T any](t T, err ...error) T {
	if len(err) > 0 {
		if err[0] != nil {
			panic(err[0])
		}
	} else if tv := reflect.ValueOf(t); (tv != reflect.Value{}) {
		if verr, ok := tv.Interface().(error); ok && verr != nil {
			panic(verr)
		}
	}
	return t
}

// Used with lo.Map to wrap functions that do not take an index argument
func Indexed[T any, U any](f func(T) U) func(T, int) U {
	return func(t T, _ int) U {
		return f(t)
	}
}
