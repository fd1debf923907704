package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

const testAddr = domain.Address("0xabcd00000000000000000000000000000000ef12")

func TestIssueAndValidate(t *testing.T) {
	svc := NewService("test-signing-key", time.Minute)

	signed, err := svc.Issue(testAddr)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	addr, err := svc.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, testAddr, addr)
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewService("test-signing-key", -time.Minute)

	signed, err := svc.Issue(testAddr)
	require.NoError(t, err)

	_, err = svc.Validate(signed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsWrongKey(t *testing.T) {
	signer := NewService("key-one", time.Minute)
	verifier := NewService("key-two", time.Minute)

	signed, err := signer.Issue(testAddr)
	require.NoError(t, err)

	_, err = verifier.Validate(signed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewService("test-signing-key", time.Minute)
	_, err := svc.Validate("not-a-token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
