package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInviteCodeRoundTrip(t *testing.T) {
	GenerateSecretKey()

	code, err := NewInviteCode()
	require.NoError(t, err)
	assert.Len(t, code, 12)
	assert.True(t, ValidateInviteCode(code))
}

func TestInviteCodesAreUnique(t *testing.T) {
	GenerateSecretKey()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := NewInviteCode()
		require.NoError(t, err)
		if seen[code] {
			t.Fatalf("生成了重复的邀请码: %s", code)
		}
		seen[code] = true
	}
}

func TestValidateInviteCodeRejectsTampered(t *testing.T) {
	GenerateSecretKey()

	code, err := NewInviteCode()
	require.NoError(t, err)

	// 篡改任意一个字符都应导致校验失败
	for i := 0; i < len(code); i++ {
		replacement := byte('2')
		if code[i] == '2' {
			replacement = '3'
		}
		tampered := code[:i] + string(replacement) + code[i+1:]
		assert.False(t, ValidateInviteCode(tampered), "篡改位置%d后仍通过校验", i)
	}
}

func TestValidateInviteCodeRejectsMalformed(t *testing.T) {
	GenerateSecretKey()

	assert.False(t, ValidateInviteCode(""))
	assert.False(t, ValidateInviteCode("short"))
	assert.False(t, ValidateInviteCode(strings.Repeat("x", 12)))
	assert.False(t, ValidateInviteCode(strings.Repeat("2", 24)))
}

func TestValidationFailsAfterKeyRotation(t *testing.T) {
	GenerateSecretKey()
	code, err := NewInviteCode()
	require.NoError(t, err)

	// 密钥轮换后旧邀请码全部失效
	GenerateSecretKey()
	assert.False(t, ValidateInviteCode(code))
}
