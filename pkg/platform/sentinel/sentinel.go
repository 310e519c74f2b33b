package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store
// - ErrConflict: unique-id condition failed on create
// - ErrConditionFailed: existence condition failed on update
// - ErrThrottled: store rejected the call under throughput pressure
// - ErrUnavailable: external service (vault, notification sink) temporarily down
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrConditionFailed = errors.New("condition failed")
	ErrThrottled       = errors.New("throttled")
	ErrUnavailable     = errors.New("unavailable")
)
