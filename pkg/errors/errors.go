// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package errors

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeBreakerOpen     Code = "breaker.execute.open"
	CodeBreakerNotFound Code = "breaker.registry.not_found"

	CodeRetryExhausted Code = "retry.execute.exhausted"

	CodeRequestInvalid     Code = "orchestrator.request.invalid"
	CodeAllProvidersFailed Code = "orchestrator.generate.all_failed"

	CodeProviderNotFound       Code = "provider.registry.not_found"
	CodeProviderConflict       Code = "provider.registry.conflict"
	CodeProviderConfigInvalid  Code = "provider.config.invalid"
	CodeProviderCallFailure    Code = "provider.call.upstream_failure"
	CodeProviderRateLimited    Code = "provider.call.rate_limited"
	CodeProviderTimeout        Code = "provider.call.timeout"
	CodeProviderResponseEmpty  Code = "provider.response.invalid"
	CodeProviderKeyInvalid     Code = "provider.key.invalid"
	CodeProviderKeyCheckFailed Code = "provider.key.check_failure"

	CodeCacheSemanticFailure Code = "cache.semantic.failure"

	CodeHealthProbeTimeout  Code = "health.probe.timeout"
	CodeHealthProbePanic    Code = "health.probe.panic"
	CodeHealthAlertNotFound Code = "health.alert.not_found"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"
	CodeConfigAlreadyExists        Code = "config.init.conflict"

	CodeSecretInvalidInput   Code = "secret.request.invalid_input"
	CodeSecretNotFound       Code = "secret.entry.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretListFailure    Code = "secret.list.failure"

	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerRateLimited     Code = "server.request.rate_limited"

	CodeCLIGatewayNotRunning Code = "cli.gateway.not_running"
	CodeCLIRequestFailure    Code = "cli.request.failure"
	CodeCLIResponseInvalid   Code = "cli.response.invalid"
	CodeCLISetupFailure      Code = "cli.setup.failure"
	CodeCLIInputInvalid      Code = "cli.input.invalid"
)

// Context keys for structured fields that carry typed payloads across the
// error boundary. Extractors below read them back.
const (
	keyProvider   = "provider"
	keyBreaker    = "breaker"
	keyCheck      = "check"
	keyAttempt    = "attempt"
	keyAttempts   = "attempts"
	keyAttempted  = "attempted"
	keyStrategy   = "strategy"
	keyElapsedMS  = "elapsed_ms"
	keyRetryAfter = "retry_after_ms"
	keyHTTPStatus = "http_status"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldProvider(name string) Attr { return Field(keyProvider, name) }

func FieldBreaker(name string) Attr { return Field(keyBreaker, name) }

func FieldCheck(name string) Attr { return Field(keyCheck, name) }

func FieldAttempt(n int) Attr { return Field(keyAttempt, n) }

func FieldAttempts(n int) Attr { return Field(keyAttempts, n) }

func FieldAttempted(providers []string) Attr { return Field(keyAttempted, providers) }

func FieldStrategy(s string) Attr { return Field(keyStrategy, s) }

func FieldElapsed(d time.Duration) Attr { return Field(keyElapsedMS, d.Milliseconds()) }

func FieldRetryAfter(d time.Duration) Attr { return Field(keyRetryAfter, d.Milliseconds()) }

func FieldHTTPStatus(status int) Attr { return Field(keyHTTPStatus, status) }

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(string(code)).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(string(code)).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(string(code)).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(string(code)).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain, preserving its code.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(string(code)).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	return Code(oopsErr.Code())
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// RetryAfterOf extracts the remaining wait attached to a breaker-open error.
func RetryAfterOf(err error) (time.Duration, bool) {
	ms, ok := intField(err, keyRetryAfter)
	if !ok {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// AttemptedOf extracts the list of attempted provider names from an
// all-providers-failed error.
func AttemptedOf(err error) ([]string, bool) {
	fields := FieldsOf(err)
	if fields == nil {
		return nil, false
	}
	names, ok := fields[keyAttempted].([]string)
	return names, ok
}

// AttemptsOf extracts the attempt count from a retries-exhausted error.
func AttemptsOf(err error) (int, bool) {
	n, ok := intField(err, keyAttempts)
	return int(n), ok
}

// StatusOf extracts the upstream HTTP status attached to a provider error.
func StatusOf(err error) (int, bool) {
	n, ok := intField(err, keyHTTPStatus)
	return int(n), ok
}

func intField(err error, key string) (int64, bool) {
	fields := FieldsOf(err)
	if fields == nil {
		return 0, false
	}

	switch v := fields[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsRateLimited(err error) bool {
	return reason(CodeOf(err)) == "rate_limited"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUpstreamFailure(err error) bool {
	return reason(CodeOf(err)) == "upstream_failure"
}

func HTTPStatus(err error) int {
	switch {
	case HasCode(err, CodeBreakerOpen):
		return http.StatusServiceUnavailable
	case HasCode(err, CodeRetryExhausted), HasCode(err, CodeAllProvidersFailed):
		return http.StatusBadGateway
	case IsRateLimited(err):
		return http.StatusTooManyRequests
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(string(CodeServerInternalFailure)).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
