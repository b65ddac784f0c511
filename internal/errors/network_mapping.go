package errors

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
)

type heuristic struct {
	needles []string
	code    string
}

// messageHeuristics are checked in order against the lower-cased message.
var messageHeuristics = []heuristic{
	{[]string{"already exists", "already registered"}, CodeRegistrationConflict},
	{[]string{"invalid credentials", "wrong password"}, CodeInvalidCredentials},
	{[]string{"account locked", "too many attempts"}, CodeAccountLocked},
	{[]string{"network", "connection", "fetch failed", "econn", "enotfound"}, CodeNetworkOffline},
	{[]string{"timeout"}, CodeNetworkTimeout},
}

// MatchMessage returns the taxonomy code for a free-form failure message.
func MatchMessage(msg string) string {
	lower := strings.ToLower(msg)
	for _, h := range messageHeuristics {
		for _, n := range h.needles {
			if strings.Contains(lower, n) {
				return h.code
			}
		}
	}
	return CodeUnknown
}

// MapNetworkError maps Go transport and runtime errors to records. Typed
// checks run first; anything else goes through the message heuristics.
func MapNetworkError(err error) *ErrorRecord {
	if err == nil {
		return mapMessage("unknown error", nil)
	}
	msg := err.Error()
	code := classifyTransport(err)
	if code == "" {
		code = MatchMessage(msg)
	}
	info, _ := lookupCode(code)
	b := newBuilder(info, 0, msg)
	b.cause = err
	return b.build()
}

func classifyTransport(err error) string {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return CodeNetworkTimeout
	}
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return CodeNetworkTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	if stderrors.As(err, &opErr) || stderrors.As(err, &dnsErr) {
		return CodeNetworkOffline
	}
	// url.Parse reports malformed input as a *url.Error with Op "parse".
	if stderrors.As(err, &urlErr) && urlErr.Op != "parse" {
		return CodeNetworkOffline
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) || stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) || stderrors.Is(err, io.EOF) {
		return CodeNetworkOffline
	}
	return ""
}

func mapMessage(text string, details *DetailSet) *ErrorRecord {
	info, _ := lookupCode(MatchMessage(text))
	b := newBuilder(info, 0, text)
	if details != nil {
		b.details = details
	}
	return b.build()
}
