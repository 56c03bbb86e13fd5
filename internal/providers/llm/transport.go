package llm

import (
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
)

// newHTTPClient returns the client injected into each SDK. It retries once
// on 429, 5xx and connection errors with exponential backoff, then hands the
// last response back to the SDK untouched so its own error decoding applies.
func newHTTPClient(kind Kind, s Settings, log *logging.Logger, metrics *monitoring.Metrics) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 1
	rc.RetryWaitMin = s.RetryWait
	rc.RetryWaitMax = 4 * s.RetryWait
	rc.Backoff = retryablehttp.DefaultBackoff
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{log.Sugar()}
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt == 0 {
			return
		}
		metrics.IncProviderRetry(string(kind))
		log.Warn("Retrying provider request",
			logging.Provider(string(kind)),
			zap.String("path", req.URL.Path),
			zap.Int("attempt", attempt))
	}
	return rc.StandardClient()
}

// leveledLogger adapts zap to retryablehttp's LeveledLogger
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
