package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerStartFailed    = errors.New("server start failed")
	ErrHandlerIsNil         = errors.New("handler is nil")
	ErrRouteNotFound        = errors.New("route not found")
	ErrMiddlewareIsNil      = errors.New("middleware is nil")
)

var (
	ErrQueryTextEmpty   = errors.New("query text empty")
	ErrQuerySyntax      = errors.New("query syntax error")
	ErrSchemaNotLoaded  = errors.New("schema not loaded")
	ErrTypeUnknown      = errors.New("type unknown")
	ErrFragmentUnknown  = errors.New("fragment unknown")
	ErrRecorderMissing  = errors.New("dependency recorder missing from context")
)

var (
	ErrStoreUnavailable   = errors.New("dependency store unavailable")
	ErrStoreKeyEmpty      = errors.New("store key empty")
	ErrStoreTypeUnknown   = errors.New("store type unknown")
	ErrStoreIsDisabled    = errors.New("dependency store is disabled")
	ErrCacheKeyEmpty      = errors.New("cache key empty")
	ErrCacheIsDisabled    = errors.New("query cache is disabled")
	ErrResultTooLarge     = errors.New("result exceeds size limit")
	ErrAssociateConflict  = errors.New("associate conflict not resolved")
)

var (
	ErrBrokerNotInitialized  = errors.New("event broker not initialized")
	ErrBrokerTypeUnknown     = errors.New("event broker type unknown")
	ErrBrokerIsDisabled      = errors.New("event broker is disabled")
	ErrEventTypeEmpty        = errors.New("mutation event type empty")
	ErrEventKindUnknown      = errors.New("mutation event kind unknown")
	ErrWebhookNotFound       = errors.New("webhook not found")
)

var (
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
)

var (
	ErrMetricsTypeUnknown  = errors.New("metrics type unknown")
	ErrMetricsIsDisabled   = errors.New("metrics manager is disabled")
	ErrMetricsNotRunning   = errors.New("metrics manager is not running")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
)

var (
	ErrServiceIsNotRunning = errors.New("service is not running")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrNotSupported        = errors.New("not supported")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
