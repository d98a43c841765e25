package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-server/internal/storage"
)

func newTestAuthenticator(t *testing.T, singleplayer bool) *Authenticator {
	t.Helper()
	tokens, err := NewTokens("", time.Hour)
	require.NoError(t, err)
	return NewAuthenticator(storage.NewMemoryStorage(), tokens, singleplayer)
}

func TestParseCredentials_Defaults(t *testing.T) {
	c, err := ParseCredentials("")
	require.NoError(t, err)
	assert.Equal(t, MethodSingleplayer, c.Method)
	assert.Equal(t, DefaultPlayerName, c.Name)

	c, err = ParseCredentials(`{"method":"password","name":"Alice","password":"pw"}`)
	require.NoError(t, err)
	assert.Equal(t, Credentials{Method: MethodPassword, Name: "Alice", Password: "pw"}, c)

	_, err = ParseCredentials("{not json")
	assert.Error(t, err)
}

func TestAuthenticate_Singleplayer(t *testing.T) {
	id, err := newTestAuthenticator(t, true).Authenticate(Credentials{Method: MethodSingleplayer, Name: "solo"})
	require.NoError(t, err)
	assert.True(t, id.Singleplayer)
	assert.Equal(t, "solo", id.Name)

	_, err = newTestAuthenticator(t, false).Authenticate(Credentials{Method: MethodSingleplayer, Name: "solo"})
	assert.ErrorIs(t, err, ErrMethodNotAllowed, "одиночный вход запрещен в сетевом режиме")
}

func TestAuthenticate_PasswordRegistersThenChecks(t *testing.T) {
	a := newTestAuthenticator(t, false)

	id, err := a.Authenticate(Credentials{Method: MethodPassword, Name: "Bob", Password: "secret"})
	require.NoError(t, err)
	assert.True(t, id.Registered, "первый вход регистрирует учетную запись")
	assert.Equal(t, "bob", id.Account)

	id, err = a.Authenticate(Credentials{Method: MethodPassword, Name: "BOB", Password: "secret"})
	require.NoError(t, err)
	assert.False(t, id.Registered)
	assert.Equal(t, "bob", id.Account, "имя учетной записи не зависит от регистра")

	_, err = a.Authenticate(Credentials{Method: MethodPassword, Name: "bob", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Authenticate(Credentials{Method: MethodPassword, Name: "bob"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_Token(t *testing.T) {
	a := newTestAuthenticator(t, false)

	token, err := a.Tokens().Issue("carol", 17)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "формат JWT")

	id, err := a.Authenticate(Credentials{Method: MethodToken, Token: token})
	require.NoError(t, err)
	assert.Equal(t, "carol", id.Account)
	assert.Equal(t, uint32(17), id.Entity)

	_, err = a.Authenticate(Credentials{Method: MethodToken, Token: token + "x"})
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.Authenticate(Credentials{Method: "telepathy"})
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestTokens_ForeignSecretRejected(t *testing.T) {
	s1, err := GenerateSecret()
	require.NoError(t, err)
	s2, err := GenerateSecret()
	require.NoError(t, err)

	t1, err := NewTokens(s1, time.Hour)
	require.NoError(t, err)
	t2, err := NewTokens(s2, time.Hour)
	require.NoError(t, err)

	token, err := t1.Issue("dave", 1)
	require.NoError(t, err)
	_, err = t2.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokens("c2hvcnQ=", time.Hour)
	assert.Error(t, err, "короткий секрет отклоняется")
}

func TestTokens_Expired(t *testing.T) {
	tokens, err := NewTokens("", time.Millisecond)
	require.NoError(t, err)
	token, err := tokens.Issue("eve", 2)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	_, err = tokens.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword_Hash(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "pw"))
	assert.False(t, CheckPassword(hash, "other"))
}
