package engine

import (
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestDiagnosePaymentRequired(t *testing.T) {
	err := &openai.APIError{HTTPStatusCode: 402, Message: "insufficient credits"}
	assert.Contains(t, Diagnose(err), "Payment error")
}

func TestDiagnoseUnauthorized(t *testing.T) {
	err := &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}
	assert.Contains(t, Diagnose(err), "Authorization error")
}

func TestDiagnoseOtherStatus(t *testing.T) {
	err := &openai.APIError{HTTPStatusCode: 503, Message: "overloaded"}
	text := Diagnose(err)
	assert.Contains(t, text, "API error")
	assert.Contains(t, text, "503")
}

func TestDiagnoseTransportError(t *testing.T) {
	text := Diagnose(errors.New("dial tcp: connection refused"))
	assert.Contains(t, text, "connection refused")
}

func TestDiagnoseUnwrapsNestedError(t *testing.T) {
	wrapped := &openai.RequestError{HTTPStatusCode: 402, Err: errors.New("payment required")}
	assert.Contains(t, Diagnose(wrapped), "Payment error")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&openai.APIError{HTTPStatusCode: 429}))
	assert.True(t, isRetryable(&openai.APIError{HTTPStatusCode: 500}))
	assert.False(t, isRetryable(&openai.APIError{HTTPStatusCode: 401}))
	assert.False(t, isRetryable(&openai.APIError{HTTPStatusCode: 402}))
	assert.True(t, isRetryable(errors.New("i/o timeout")))
}
