package common

import (
	"os"
	"strings"
	"testing"
)

func IsTestEnv() bool {
	return testing.Testing()
}
func IsDevelopment() bool {
	return os.Getenv(EnvKeyGoEnv) == "development"
}

func IsProduction() bool {
	return os.Getenv(EnvKeyGoEnv) == "production"
}

func Mapper[T any, R any](items []T, mapFn func(T) R) []R {
	mapped := make([]R, len(items))
	for i := range len(items) {
		mapped[i] = mapFn(items[i])
	}
	return mapped
}

func Reducer[T any, R any](items []T, reduceFn func(R, T) R, initAcc R) R {
	finalAcc := initAcc
	for i := range len(items) {
		finalAcc = reduceFn(finalAcc, items[i])
	}
	return finalAcc
}

func Filter[T any](items []T, keep func(T) bool) []T {
	kept := make([]T, 0, len(items))
	for i := range len(items) {
		if keep(items[i]) {
			kept = append(kept, items[i])
		}
	}
	return kept
}

// SplitList splits a comma separated env value, dropping blanks.
func SplitList(s string) []string {
	return Filter(
		Mapper(strings.Split(s, ","), strings.TrimSpace),
		func(v string) bool { return v != "" },
	)
}
