package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
)

// secretKey 是一个全局变量，用于存储服务器在启动时生成的32字节密钥。
var secretKey []byte

// inviteCodeLength 是邀请码的固定长度。
// 前半部分是随机数，后半部分是HMAC签名的截断，两者共同保证邀请码不可伪造。
const inviteCodeLength = 12

// base32编码使用不含易混淆字符的自定义字母表，方便口头传播邀请码。
var codeEncoding = base32.NewEncoding("ABCDEFGHJKMNPQRSTUVWXYZ23456789L").WithPadding(base32.NoPadding)

// GenerateSecretKey 生成一个密码学安全的32字节随机密钥。
func GenerateSecretKey() {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	if err != nil {
		panic("无法生成安全的密钥: " + err.Error())
	}
	secretKey = key
	fmt.Println("HMAC密钥已成功生成。")
}

// NewInviteCode 为一个私密对战会话生成自验证的邀请码。
// 结构: [6字符随机数 | 6字符签名]，签名覆盖随机数部分。
func NewInviteCode() (string, error) {
	nonce := make([]byte, 4)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("无法生成邀请码随机数: %w", err)
	}

	noncePart := codeEncoding.EncodeToString(nonce)[:inviteCodeLength/2]
	return noncePart + signPart(noncePart), nil
}

// ValidateInviteCode 验证一个邀请码的签名部分是否匹配。
// 只做格式与签名校验，邀请码对应的会话是否存在由调用方查询持久层确认。
func ValidateInviteCode(code string) bool {
	if len(code) != inviteCodeLength {
		return false
	}
	noncePart := code[:inviteCodeLength/2]
	expected := signPart(noncePart)

	// 使用恒定时间比较，防止时序攻击
	return hmac.Equal([]byte(expected), []byte(code[inviteCodeLength/2:]))
}

// signPart 计算邀请码随机数部分的HMAC签名截断。
func signPart(noncePart string) string {
	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(noncePart))
	signature := mac.Sum(nil)
	return codeEncoding.EncodeToString(signature)[:inviteCodeLength/2]
}
