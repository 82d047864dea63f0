package util

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"
)

// setupTestLogger creates a test logger that captures output and returns it
// for assertions along with a cleanup function to restore the original logger
func setupTestLogger() (*bytes.Buffer, func()) {
	buf := &bytes.Buffer{}
	originalLogger := securityLogger
	securityLogger = log.New(buf, "[SECURITY] ", log.LstdFlags|log.Lmsgprefix)
	cleanup := func() {
		securityLogger = originalLogger
	}
	return buf, cleanup
}

// assertLogContains checks if the log output contains all expected substrings
func assertLogContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, expectedSubstr := range expected {
		if !strings.Contains(output, expectedSubstr) {
			t.Errorf("Log output missing expected substring %q\nGot: %s", expectedSubstr, output)
		}
	}
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "removes newlines", input: "hello\nworld", expected: "hello world"},
		{name: "removes carriage returns", input: "hello\rworld", expected: "hello world"},
		{name: "removes tabs", input: "hello\tworld", expected: "hello world"},
		{name: "passes through clean values", input: "clean value", expected: "clean value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeLogValue(tt.input); got != tt.expected {
				t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeLogValueTruncation(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := sanitizeLogValue(long)
	if len(got) != 203 {
		t.Fatalf("expected truncation to 200 chars plus ellipsis, got len %d", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", got[len(got)-5:])
	}
}

func TestLogSecurityEventBasic(t *testing.T) {
	buf, cleanup := setupTestLogger()
	defer cleanup()

	LogSecurityEvent(SecurityEvent{
		EventType: EventSuspiciousActivity,
		UserID:    "42",
		Email:     "user@example.com",
		IP:        "192.168.1.1",
		Message:   "Something odd",
	})

	assertLogContains(t, buf.String(), []string{
		"Event=SUSPICIOUS_ACTIVITY",
		"UserID=42",
		"Email=user@example.com",
		"IP=192.168.1.1",
		"Message=Something odd",
	})
}

func TestLogSecurityEventSanitization(t *testing.T) {
	buf, cleanup := setupTestLogger()
	defer cleanup()

	LogSecurityEvent(SecurityEvent{
		EventType: EventLoginFailure,
		Email:     "bad\nactor@example.com",
		IP:        "10.0.0.1",
		Message:   "injected\rline",
	})

	output := buf.String()
	if strings.Contains(output, "bad\nactor") {
		t.Fatalf("newline survived sanitization: %q", output)
	}
	assertLogContains(t, output, []string{"bad actor@example.com", "injected line"})
}

func TestLogSecurityEventWithDetails(t *testing.T) {
	buf, cleanup := setupTestLogger()
	defer cleanup()

	LogSecurityEvent(SecurityEvent{
		EventType: EventEndpointCall,
		IP:        "10.0.0.2",
		Message:   "GET /login -> 200",
		Details:   map[string]interface{}{"status": 200, "duration_ms": 3},
	})

	// Details are only counted in the process log, never dumped raw.
	assertLogContains(t, buf.String(), []string{"DetailsCount=2"})
}

func TestLoginLogging(t *testing.T) {
	tests := []struct {
		name     string
		logFunc  func()
		contains []string
	}{
		{
			name:    "LogLoginSuccess",
			logFunc: func() { LogLoginSuccess(123, "user@example.com", "192.168.1.1", "Mozilla/5.0") },
			contains: []string{
				"Event=LOGIN_SUCCESS",
				"UserID=123",
				"Email=user@example.com",
				"IP=192.168.1.1",
				"Message=User logged in successfully",
			},
		},
		{
			name:    "LogLoginFailure",
			logFunc: func() { LogLoginFailure("user@example.com", "192.168.1.1", "Mozilla/5.0", "invalid password") },
			contains: []string{
				"Event=LOGIN_FAILURE",
				"Email=user@example.com",
				"Message=Login failed: invalid password",
			},
		},
		{
			name:    "LogLogout",
			logFunc: func() { LogLogout(456, "user@example.com", "192.168.1.2", "Chrome") },
			contains: []string{
				"Event=LOGOUT",
				"UserID=456",
				"Message=User logged out",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, cleanup := setupTestLogger()
			defer cleanup()

			tt.logFunc()
			assertLogContains(t, buf.String(), tt.contains)
		})
	}
}

func TestBlockAndAccessLogging(t *testing.T) {
	until := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		logFunc  func()
		contains []string
	}{
		{
			name:    "LogIPBlocked",
			logFunc: func() { LogIPBlocked("192.168.1.3", "target@example.com", until) },
			contains: []string{
				"Event=IP_BLOCKED",
				"IP=192.168.1.3",
				"Email=target@example.com",
				"Message=IP blocked until 2026-03-01T12:00:00Z",
			},
		},
		{
			name:    "LogIPUnblocked",
			logFunc: func() { LogIPUnblocked("192.168.1.3", "cooldown_expired") },
			contains: []string{
				"Event=IP_UNBLOCKED",
				"IP=192.168.1.3",
				"Message=IP unblocked: cooldown_expired",
			},
		},
		{
			name: "LogUnauthorizedAccess",
			logFunc: func() {
				LogUnauthorizedAccess("101", "user@example.com", "192.168.1.4", "/security/blocks", "not staff")
			},
			contains: []string{
				"Event=UNAUTHORIZED_ACCESS",
				"UserID=101",
				"Message=Unauthorized access to /security/blocks: not staff",
			},
		},
		{
			name:    "LogRateLimitExceeded",
			logFunc: func() { LogRateLimitExceeded("user@example.com", "192.168.1.5", "/login") },
			contains: []string{
				"Event=RATE_LIMIT_EXCEEDED",
				"Email=user@example.com",
				"IP=192.168.1.5",
				"Message=Rate limit exceeded for endpoint: /login",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, cleanup := setupTestLogger()
			defer cleanup()

			tt.logFunc()
			assertLogContains(t, buf.String(), tt.contains)
		})
	}
}
