package totp

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func TestNewGenerator(t *testing.T) {
	_, err := NewGenerator("")
	assert.Error(t, err)

	_, err = NewGenerator("not base32 !!!")
	assert.Error(t, err)

	g, err := NewGenerator("jbsw y3dp ehpk 3pxp")
	require.NoError(t, err)
	assert.Equal(t, testSecret, g.secret)
}

func TestGenerator_Code(t *testing.T) {
	g, err := NewGenerator(testSecret)
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return at }

	code, err := g.Code()
	require.NoError(t, err)
	assert.Len(t, code, 6)

	valid, err := totp.ValidateCustom(code, testSecret, at, totp.ValidateOpts{Digits: 6, Period: 30})
	require.NoError(t, err)
	assert.True(t, valid)
}
