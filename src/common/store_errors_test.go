package common

import (
	"errors"
	"testing"
)

func TestIsStore(t *testing.T) {
	err := NewStoreErr("Variable", UnknownVariable, "Z")

	if !IsStore(err, UnknownVariable) {
		t.Fatalf("%v should be an UnknownVariable StoreErr", err)
	}

	if IsStore(err, KeyNotFound) {
		t.Fatalf("%v should not be a KeyNotFound StoreErr", err)
	}

	if IsStore(errors.New("Variable, Z, Unknown Variable"), UnknownVariable) {
		t.Fatal("plain errors are not StoreErrs")
	}

	if msg := err.Error(); msg != "Variable, Z, Unknown Variable" {
		t.Fatalf("Error() should be 'Variable, Z, Unknown Variable', not '%s'", msg)
	}
}
