package test

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Expect compares two values and fails the test if they are different.
//
// Empty and nil collections are treated as equal, so a []byte{} payload read
// from storage matches the nil payload that produced it.
func Expect[T any](
	t FailerT,
	failMessage string,
	got, want T,
) {
	t.Helper()

	if diff := cmp.Diff(
		want,
		got,
		cmpopts.EquateEmpty(),
		cmpopts.EquateErrors(),
	); diff != "" {
		t.Log(failMessage)
		t.Fatal(diff)
	}
}
