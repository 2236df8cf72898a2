package adminsdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Request headers owned by the pipeline.
const (
	HeaderAuthorization = "Authorization"
	HeaderCorrelationID = "X-Correlation-ID"

	// HeaderSilent opts a request out of failure notifications. The header
	// is stripped before the request leaves the process.
	HeaderSilent = "X-Silent"
)

// SkipAuthPaths are endpoints exempt from bearer injection and from the
// refresh-on-401 flow, matched as substrings of the request URL.
var SkipAuthPaths = []string{
	"/connect/token",
	"/connect/authorize",
	"/connect/userinfo",
	"/api/account/register",
	"/api/account/forgot-password",
	"/api/account/reset-password",
}

const (
	defaultRetryAttempts = 2
	defaultRetryBackoff  = time.Second
)

// Stage is one element of the request pipeline: it wraps a transport and
// returns a transport.
type Stage func(next http.RoundTripper) http.RoundTripper

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Chain composes stages around base. The first stage is outermost, i.e. it
// sees the request first and the response last.
func Chain(base http.RoundTripper, stages ...Stage) http.RoundTripper {
	rt := base
	for i := len(stages) - 1; i >= 0; i-- {
		rt = stages[i](rt)
	}
	return rt
}

// PipelineConfig configures NewPipeline.
type PipelineConfig struct {
	// Base transport; defaults to http.DefaultTransport.
	Base http.RoundTripper

	Session     *SessionManager
	Coordinator *Coordinator

	// Notifier observes transport failures; nil disables observation.
	Notifier Notifier

	// Limiter bounds the outgoing request rate; nil disables throttling.
	Limiter *rate.Limiter

	// RetryAttempts is the number of retries after the first attempt for
	// transient failures (network error or 504). Defaults to 2.
	RetryAttempts int

	// RetryBackoff is the base delay; attempt n waits n times this.
	// Defaults to 1s, i.e. 1s then 2s.
	RetryBackoff time.Duration

	Logger *slog.Logger
}

// NewPipeline assembles the interceptor chain applied to every outgoing
// request:
//
//	observe -> log -> auth (skip-list, bearer, refresh-on-401) ->
//	retry -> throttle -> correlation -> network
//
// Every path through the chain either returns a response or propagates a
// typed error; nothing is swallowed.
func NewPipeline(cfg PipelineConfig) http.RoundTripper {
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = defaultRetryAttempts
	}
	backoff := cfg.RetryBackoff
	if backoff == 0 {
		backoff = defaultRetryBackoff
	}

	return Chain(base,
		ObserveStage(cfg.Notifier),
		LogStage(logger),
		AuthStage(cfg.Session, cfg.Coordinator, logger),
		RetryStage(attempts, backoff, logger),
		ThrottleStage(cfg.Limiter),
		CorrelationStage(),
	)
}

// SkipListed reports whether the URL belongs to an unauthenticated endpoint.
func SkipListed(u *url.URL) bool {
	s := u.String()
	for _, p := range SkipAuthPaths {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// AuthStage attaches the bearer token to non-skip-listed requests and, on a
// 401, refreshes through the coordinator and replays the request exactly
// once with the freshest stored token. A failed refresh has already logged
// the session out; the original 401 response is propagated unchanged.
func AuthStage(sess *SessionManager, coord *Coordinator, logger *slog.Logger) Stage {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if SkipListed(req.URL) {
				return next.RoundTrip(req)
			}

			resp, err := next.RoundTrip(withBearer(req, sess.Token()))
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}

			if rerr := coord.Do(req.Context()); rerr != nil {
				logger.Warn("refresh after 401 failed",
					"url", req.URL.Path,
					"error", rerr,
				)
				return resp, nil
			}

			replay, rerr := rewind(req)
			if rerr != nil {
				logger.Warn("cannot replay request after refresh", "error", rerr)
				return resp, nil
			}
			discard(resp)

			// Replayed at most once; a second 401 propagates to the caller.
			return next.RoundTrip(withBearer(replay, sess.Token()))
		})
	}
}

// RetryStage retries transient failures: transport errors (the status-0
// case) and 504 responses. Attempt n backs off n times the base delay. Any
// other failure propagates immediately.
func RetryStage(attempts int, backoff time.Duration, logger *slog.Logger) Stage {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(req *http.Request) (*http.Response, error) {
			var resp *http.Response
			var err error

			for attempt := 0; ; attempt++ {
				r := req
				if attempt > 0 {
					if r, err = rewind(req); err != nil {
						return nil, err
					}
				}

				resp, err = next.RoundTrip(r)
				if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
					return nil, err
				}

				transient := err != nil ||
					(resp != nil && resp.StatusCode == http.StatusGatewayTimeout)
				if !transient {
					return resp, nil
				}
				if attempt >= attempts {
					if err != nil {
						return nil, &NetworkError{Err: err}
					}
					return resp, nil
				}

				discard(resp)
				delay := time.Duration(attempt+1) * backoff
				logger.Debug("transient failure, retrying",
					"url", req.URL.Path,
					"attempt", attempt+1,
					"delay", delay,
				)

				select {
				case <-req.Context().Done():
					return nil, req.Context().Err()
				case <-time.After(delay):
				}
			}
		})
	}
}

// ThrottleStage bounds the outgoing request rate.
func ThrottleStage(limiter *rate.Limiter) Stage {
	return func(next http.RoundTripper) http.RoundTripper {
		if limiter == nil {
			return next
		}
		return roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if err := limiter.Wait(req.Context()); err != nil {
				return nil, err
			}
			return next.RoundTrip(req)
		})
	}
}

// CorrelationStage tags each request with an X-Correlation-ID so client and
// server logs can be joined.
func CorrelationStage() Stage {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(HeaderCorrelationID) != "" {
				return next.RoundTrip(req)
			}
			r := req.Clone(req.Context())
			r.Header.Set(HeaderCorrelationID, uuid.NewString())
			return next.RoundTrip(r)
		})
	}
}

// LogStage records failed requests. Statuses other than 401 never alter
// authentication state; they are logged and propagated unchanged.
func LogStage(logger *slog.Logger) Stage {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(req)
			switch {
			case err != nil:
				logger.Error("request failed",
					"method", req.Method,
					"url", req.URL.Path,
					"error", err,
				)
			case resp.StatusCode >= http.StatusInternalServerError:
				logger.Error("server error",
					"method", req.Method,
					"url", req.URL.Path,
					"status", resp.StatusCode,
				)
			case resp.StatusCode == http.StatusForbidden,
				resp.StatusCode == http.StatusNotFound:
				logger.Warn("request rejected",
					"method", req.Method,
					"url", req.URL.Path,
					"status", resp.StatusCode,
				)
			}
			return resp, err
		})
	}
}

// Notifier is the pipeline's view of the notification layer. It observes
// outcomes; it never participates in authentication state.
type Notifier interface {
	Failure(err error)
	Success(message string)
}

// ObserveStage reports transport-level failures to the notifier and strips
// the silent header. Envelope-level failures are reported by the Client,
// which is the first place the response body is available.
func ObserveStage(n Notifier) Stage {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(req *http.Request) (*http.Response, error) {
			silent := req.Header.Get(HeaderSilent) != ""
			if silent {
				r := req.Clone(req.Context())
				r.Header.Del(HeaderSilent)
				req = r
			}

			resp, err := next.RoundTrip(req)
			if err != nil && n != nil && !silent {
				n.Failure(err)
			}
			return resp, err
		})
	}
}

// withBearer clones req and attaches the token, never mutating the
// original. The token is read at dispatch time, so replays see the freshest
// stored token.
func withBearer(req *http.Request, token string) *http.Request {
	r := req.Clone(req.Context())
	if token != "" {
		r.Header.Set(HeaderAuthorization, "Bearer "+token)
	}
	return r
}

// rewind prepares a request for re-dispatch. Bodyless requests are reused
// as-is; bodied requests need GetBody, which net/http sets for the common
// buffer types.
func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

// discard drains and closes a response body so the connection can be
// reused.
func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
