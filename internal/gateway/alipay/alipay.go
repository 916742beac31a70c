// Package alipay implements the subset of the Alipay open API the shop
// needs: QR-code precreate, trade query, and async notification
// verification. Requests are signed RSA2 (SHA256withRSA) over the
// sorted parameter string; notifications are verified the same way
// against Alipay's public key.
package alipay

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

var (
	ErrConfigInvalid    = errors.New("alipay: config invalid")
	ErrSignGenerate     = errors.New("alipay: sign generate failed")
	ErrSignatureInvalid = errors.New("alipay: signature invalid")
	ErrRequestFailed    = errors.New("alipay: request failed")
	ErrResponseInvalid  = errors.New("alipay: response invalid")
)

// Acknowledgment tokens the gateway expects as the literal response
// body of the notify endpoint.
const (
	AckSuccess = "success"
	AckFailure = "failure"
)

// Trade states returned by alipay.trade.query.
const (
	TradeSuccess  = "TRADE_SUCCESS"
	TradeFinished = "TRADE_FINISHED"
	TradeWaitPay  = "WAIT_BUYER_PAY"
	TradeClosed   = "TRADE_CLOSED"
)

// Config carries the merchant credentials. Keys are PEM (PKCS#1 or
// PKCS#8 for the private key, PKIX for Alipay's public key).
type Config struct {
	AppID           string
	PrivateKeyPEM   string
	AlipayPublicPEM string
	GatewayURL      string
	NotifyURL       string
}

// Client talks to one Alipay merchant app.
type Client struct {
	appID      string
	privateKey *rsa.PrivateKey
	alipayKey  *rsa.PublicKey
	gatewayURL string
	notifyURL  string
	httpClient *http.Client
}

func New(cfg Config, timeout time.Duration) (*Client, error) {
	if cfg.AppID == "" || cfg.PrivateKeyPEM == "" || cfg.AlipayPublicPEM == "" || cfg.GatewayURL == "" {
		return nil, ErrConfigInvalid
	}
	priv, err := parsePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrConfigInvalid, err)
	}
	pub, err := parsePublicKey(cfg.AlipayPublicPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: alipay public key: %v", ErrConfigInvalid, err)
	}
	return &Client{
		appID:      cfg.AppID,
		privateKey: priv,
		alipayKey:  pub,
		gatewayURL: cfg.GatewayURL,
		notifyURL:  cfg.NotifyURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// PrecreateResult is the QR-code payment session.
type PrecreateResult struct {
	OutTradeNo string
	QRCode     string
}

// Precreate creates a face-to-face QR payment for the order
// (alipay.trade.precreate). The customer scans the returned QR payload;
// settlement arrives on the notify URL.
func (c *Client) Precreate(ctx context.Context, outTradeNo, amount, subject string) (*PrecreateResult, error) {
	bizContent, err := json.Marshal(map[string]string{
		"out_trade_no": outTradeNo,
		"total_amount": amount,
		"subject":      subject,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	body, err := c.call(ctx, "alipay.trade.precreate", string(bizContent))
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Response struct {
			Code       string `json:"code"`
			Msg        string `json:"msg"`
			SubMsg     string `json:"sub_msg"`
			OutTradeNo string `json:"out_trade_no"`
			QRCode     string `json:"qr_code"`
		} `json:"alipay_trade_precreate_response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if envelope.Response.Code != "10000" {
		return nil, fmt.Errorf("%w: code=%s msg=%s %s", ErrResponseInvalid,
			envelope.Response.Code, envelope.Response.Msg, envelope.Response.SubMsg)
	}
	if envelope.Response.QRCode == "" {
		return nil, fmt.Errorf("%w: empty qr_code", ErrResponseInvalid)
	}
	return &PrecreateResult{
		OutTradeNo: envelope.Response.OutTradeNo,
		QRCode:     envelope.Response.QRCode,
	}, nil
}

// QueryResult is the settlement state of one trade.
type QueryResult struct {
	TradeStatus string
	TradeNo     string
	TotalAmount string
}

// QueryTrade asks the gateway for the current state of a trade
// (alipay.trade.query). An unknown trade comes back as code 40004 with
// sub code ACQ.TRADE_NOT_EXIST, which is reported as WAIT_BUYER_PAY:
// the customer simply has not scanned yet.
func (c *Client) QueryTrade(ctx context.Context, outTradeNo string) (*QueryResult, error) {
	bizContent, err := json.Marshal(map[string]string{"out_trade_no": outTradeNo})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	body, err := c.call(ctx, "alipay.trade.query", string(bizContent))
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Response struct {
			Code        string `json:"code"`
			SubCode     string `json:"sub_code"`
			TradeStatus string `json:"trade_status"`
			TradeNo     string `json:"trade_no"`
			TotalAmount string `json:"total_amount"`
		} `json:"alipay_trade_query_response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if envelope.Response.Code != "10000" {
		if envelope.Response.SubCode == "ACQ.TRADE_NOT_EXIST" {
			return &QueryResult{TradeStatus: TradeWaitPay}, nil
		}
		return nil, fmt.Errorf("%w: code=%s sub_code=%s", ErrResponseInvalid,
			envelope.Response.Code, envelope.Response.SubCode)
	}
	return &QueryResult{
		TradeStatus: envelope.Response.TradeStatus,
		TradeNo:     envelope.Response.TradeNo,
		TotalAmount: envelope.Response.TotalAmount,
	}, nil
}

// call performs one signed API request and returns the raw body.
func (c *Client) call(ctx context.Context, method, bizContent string) ([]byte, error) {
	params := url.Values{}
	params.Set("app_id", c.appID)
	params.Set("method", method)
	params.Set("format", "JSON")
	params.Set("charset", "utf-8")
	params.Set("sign_type", "RSA2")
	params.Set("timestamp", time.Now().Format("2006-01-02 15:04:05"))
	params.Set("version", "1.0")
	params.Set("biz_content", bizContent)
	if c.notifyURL != "" {
		params.Set("notify_url", c.notifyURL)
	}

	sign, err := c.sign(params)
	if err != nil {
		return nil, err
	}
	params.Set("sign", sign)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	return body, nil
}

// sign builds the RSA2 signature over the sorted parameter string.
func (c *Client) sign(params url.Values) (string, error) {
	digest := sha256.Sum256([]byte(signContent(params)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignGenerate, err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyNotification checks the RSA2 signature of an async notification
// payload against Alipay's public key. The sign and sign_type fields
// are excluded from the signed content, per the gateway contract.
func (c *Client) VerifyNotification(values url.Values) error {
	sign := values.Get("sign")
	if sign == "" {
		return ErrSignatureInvalid
	}
	sig, err := base64.StdEncoding.DecodeString(sign)
	if err != nil {
		return ErrSignatureInvalid
	}

	filtered := url.Values{}
	for k, vs := range values {
		if k == "sign" || k == "sign_type" {
			continue
		}
		for _, v := range vs {
			filtered.Add(k, v)
		}
	}

	digest := sha256.Sum256([]byte(signContent(filtered)))
	if err := rsa.VerifyPKCS1v15(c.alipayKey, crypto.SHA256, digest[:], sig); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}

// signContent joins non-empty parameters as k=v&k=v in key order.
// Values are the raw (decoded) strings, not URL-encoded.
func signContent(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}
	return strings.Join(pairs, "&")
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("no PEM block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA private key")
	}
	return key, nil
}

func parsePublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("no PEM block")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return key, nil
}
