package utils

import (
	"testing"

	"golang.org/x/exp/slices"
)

// AssertEquals stops the test when result differs from expected.
func AssertEquals[T comparable](t *testing.T, expected T, result T) {
	t.Helper()
	if expected != result {
		t.Fatalf("got '%v', expected '%v'", result, expected)
	}
}

func AssertEqualsMsg[T comparable](t *testing.T, expected T, result T, msg string) {
	t.Helper()
	if expected != result {
		t.Fatalf("%s: got '%v', expected '%v'", msg, result, expected)
	}
}

// AssertSliceEquals compares element by element, order included.
func AssertSliceEquals[T comparable](t *testing.T, expected []T, result []T) {
	t.Helper()
	if !slices.Equal(expected, result) {
		t.Fatalf("got '%v', expected '%v'", result, expected)
	}
}

// AssertNil is meant for errors: a typed nil pointer wrapped in an
// interface is not nil.
func AssertNil(t *testing.T, result interface{}) {
	t.Helper()
	if result != nil {
		t.Fatalf("got '%v', expected nil", result)
	}
}

func AssertNonNil(t *testing.T, result interface{}) {
	t.Helper()
	if result == nil {
		t.Fatalf("got nil, expected a value")
	}
}

func AssertTrue(t *testing.T, isTrue bool) {
	t.Helper()
	if !isTrue {
		t.Fatalf("got false")
	}
}

func AssertTrueMsg(t *testing.T, isTrue bool, msg string) {
	t.Helper()
	if !isTrue {
		t.Fatalf("got false: %s", msg)
	}
}

func AssertFalse(t *testing.T, isTrue bool) {
	t.Helper()
	if isTrue {
		t.Fatalf("got true")
	}
}

func AssertFalseMsg(t *testing.T, isTrue bool, msg string) {
	t.Helper()
	if isTrue {
		t.Fatalf("got true: %s", msg)
	}
}
