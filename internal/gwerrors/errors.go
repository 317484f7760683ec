// Package gwerrors defines the node's error taxonomy: every error that
// crosses a package boundary in this module is wrapped into one of
// these five classes, so callers (the chain worker's retry loop, the
// RPC layer's status mapping) can branch on class without knowing
// every concrete error type underneath.
package gwerrors

import (
	"errors"
	"fmt"
)

// Class is the top-level error category.
type Class string

const (
	// ClassTransientL1 covers L1 RPC/indexer failures expected to
	// clear on retry: connection resets, temporary rate limiting,
	// a block not yet indexed.
	ClassTransientL1 Class = "transient_l1"
	// ClassProtocol covers provable rollup-protocol violations: a
	// submitted block that fails replay, a malformed witness, a
	// checkpoint mismatch. These are Challenge-class in
	// internal/generator's terms.
	ClassProtocol Class = "protocol"
	// ClassResource covers local resource exhaustion: mem-pool full,
	// cycle budget exhausted, store disk pressure.
	ClassResource Class = "resource"
	// ClassInvariant covers violations of an invariant this node's own
	// code is supposed to guarantee — these indicate a bug, not bad
	// input, and are never expected to be recoverable by retrying.
	ClassInvariant Class = "invariant"
	// ClassConfiguration covers bad or missing configuration detected
	// at startup or reload.
	ClassConfiguration Class = "configuration"
)

// Error wraps an underlying error with its class and an operation
// label, the unit the chain worker's backoff policy and the RPC
// layer's status mapping both key off.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Class, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds a classified Error. op should name the failing
// operation (e.g. "l1client.GetBlock", "generator.VerifyAndApplyBlock")
// so logs and metrics can be grouped by call site.
func Wrap(class Class, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Op: op, Err: err}
}

// Is reports whether err is classified as class, unwrapping through
// any wrapper chain.
func Is(err error, class Class) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// Retryable reports whether an error's class is generally safe to
// retry after a backoff: transient L1 failures and local resource
// pressure are, protocol and invariant violations and configuration
// errors are not.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Class {
	case ClassTransientL1, ClassResource:
		return true
	default:
		return false
	}
}
