// Package util provides small helpers shared across qsip packages.
package util

func Must2[T any](v T, e error) T {
	if e != nil {
		panic(e)
	}
	return v
}
