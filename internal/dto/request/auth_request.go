package request

// TokenRequest UI 端凭接入密钥换取 Access Token
type TokenRequest struct {
	ClientID  string `json:"client_id" binding:"required,max=64"`
	ClientKey string `json:"client_key" binding:"required"`
}
