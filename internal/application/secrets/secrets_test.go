package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dErrors "geoscore/pkg/domain-errors"
)

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, APIKeyPrefix))
	assert.Len(t, a, len(APIKeyPrefix)+64)
	assert.NotEqual(t, a, b)
}

func TestNewExternalID(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewExternalID(), ExternalIDPrefix))
	assert.NotEqual(t, NewExternalID(), NewExternalID())
}

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("loc_secret", bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, Verify("loc_secret", hash))

	err = Verify("loc_other", hash)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = Hash("", bcrypt.MinCost)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
