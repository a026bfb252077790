package payment

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/linemk/rcon-shop/internal/config"
)

// ECPayPaymentType: способ оплаты в кассе ECPay
type ECPayPaymentType string

const (
	ECPayATM ECPayPaymentType = "ATM"
	ECPayCVS ECPayPaymentType = "CVS"
)

// коды RtnCode из протокола ECPay
const (
	ecpayRtnPaid        = 1
	ecpayRtnATMIssued   = 2
	ecpayRtnCVSIssued   = 10100073
	ecpayTradeNoMaxLen  = 20
	ecpayItemNameMaxLen = 400
)

var taipei = time.FixedZone("CST", 8*60*60)

// ECPay: адаптер асинхронной оплаты ATM/CVS. Подтверждает только подписанный колбэк.
type ECPay struct {
	merchantID     string
	hashKey        string
	hashIV         string
	endpoint       string
	returnURL      string
	paymentInfoURL string
	clientBackURL  string
	now            func() time.Time
}

func NewECPay(cfg config.ECPayConfig) *ECPay {
	return &ECPay{
		merchantID:     cfg.MerchantID,
		hashKey:        cfg.HashKey,
		hashIV:         cfg.HashIV,
		endpoint:       cfg.Endpoint,
		returnURL:      cfg.ReturnURL,
		paymentInfoURL: cfg.PaymentInfoURL,
		clientBackURL:  cfg.ClientBackURL,
		now:            time.Now,
	}
}

func (e *ECPay) MerchantID() string { return e.merchantID }

// Configured: заданы MerchantID и ключи подписи
func (e *ECPay) Configured() bool {
	return e.merchantID != "" && e.hashKey != "" && e.hashIV != ""
}

func (e *ECPay) Endpoint() string { return e.endpoint }

// NewTradeNo генерирует MerchantTradeNo: до 20 латинских букв и цифр
func (e *ECPay) NewTradeNo() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return ("RS" + id)[:ecpayTradeNoMaxLen]
}

// CheckoutForm: поля формы, которую браузер отправляет на кассу ECPay
type CheckoutForm struct {
	Action string            `json:"action"`
	Fields map[string]string `json:"fields"`
}

// CheckoutForm собирает и подписывает форму AioCheckOut. Сумма в целых TWD.
func (e *ECPay) CheckoutForm(tradeNo string, amount int64, paymentType ECPayPaymentType, itemNames []string) *CheckoutForm {
	fields := map[string]string{
		"MerchantID":        e.merchantID,
		"MerchantTradeNo":   tradeNo,
		"MerchantTradeDate": e.now().In(taipei).Format("2006/01/02 15:04:05"),
		"PaymentType":       "aio",
		"TotalAmount":       strconv.FormatInt(amount, 10),
		"TradeDesc":         "Game shop order",
		"ItemName":          joinItemNames(itemNames),
		"ReturnURL":         e.returnURL,
		"ChoosePayment":     string(paymentType),
		"EncryptType":       "1",
	}
	if e.paymentInfoURL != "" {
		fields["PaymentInfoURL"] = e.paymentInfoURL
	}
	if e.clientBackURL != "" {
		fields["ClientBackURL"] = e.clientBackURL
	}
	fields[checkMacField] = CheckMacValue(fields, e.hashKey, e.hashIV)
	return &CheckoutForm{Action: e.endpoint, Fields: fields}
}

func joinItemNames(names []string) string {
	s := strings.Join(names, "#")
	if len(s) <= ecpayItemNameMaxLen {
		return s
	}
	// режем по границе руны
	s = s[:ecpayItemNameMaxLen]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// Callback: разобранный и проверенный колбэк ECPay (ReturnURL или PaymentInfoURL)
type Callback struct {
	MerchantTradeNo string
	TradeNo         string
	RtnCode         int
	RtnMsg          string
	TradeAmt        int64
	PaymentType     string
	BankCode        string
	VAccount        string
	PaymentNo       string
	ExpireDate      string
}

// Paid: оплата подтверждена (RtnCode=1)
func (c *Callback) Paid() bool { return c.RtnCode == ecpayRtnPaid }

// InstructionsIssued: выданы реквизиты ATM/CVS для оплаты
func (c *Callback) InstructionsIssued() bool {
	return c.RtnCode == ecpayRtnATMIssued || c.RtnCode == ecpayRtnCVSIssued
}

// Instructions возвращает реквизиты оплаты для прикрепления к группе
func (c *Callback) Instructions() map[string]string {
	out := map[string]string{"paymentType": c.PaymentType, "expireDate": c.ExpireDate}
	if c.BankCode != "" {
		out["bankCode"] = c.BankCode
		out["vAccount"] = c.VAccount
	}
	if c.PaymentNo != "" {
		out["paymentNo"] = c.PaymentNo
	}
	return out
}

// VerifySignature проверяет CheckMacValue по набору параметров колбэка
func (e *ECPay) VerifySignature(params map[string]string) bool {
	return VerifyCheckMacValue(params, e.hashKey, e.hashIV)
}

// ParseCallback проверяет подпись и MerchantID и разбирает поля.
// Валидная подпись не означает оплату: смотреть Paid().
func (e *ECPay) ParseCallback(form url.Values) (*Callback, error) {
	if !e.Configured() {
		return nil, ErrNotConfigured
	}
	params := FlattenForm(form)
	if !e.VerifySignature(params) {
		return nil, ErrSignatureVerification
	}
	if params["MerchantID"] != e.merchantID {
		return nil, fmt.Errorf("%w: unexpected merchant id %q", ErrSignatureVerification, params["MerchantID"])
	}

	cb := &Callback{
		MerchantTradeNo: params["MerchantTradeNo"],
		TradeNo:         params["TradeNo"],
		RtnMsg:          params["RtnMsg"],
		PaymentType:     params["PaymentType"],
		BankCode:        params["BankCode"],
		VAccount:        params["vAccount"],
		PaymentNo:       params["PaymentNo"],
		ExpireDate:      params["ExpireDate"],
	}
	var err error
	if cb.RtnCode, err = strconv.Atoi(params["RtnCode"]); err != nil {
		return nil, fmt.Errorf("%w: bad RtnCode: %w", ErrPaymentProvider, err)
	}
	if cb.TradeAmt, err = strconv.ParseInt(params["TradeAmt"], 10, 64); err != nil {
		return nil, fmt.Errorf("%w: bad TradeAmt: %w", ErrPaymentProvider, err)
	}
	if cb.MerchantTradeNo == "" {
		return nil, fmt.Errorf("%w: missing MerchantTradeNo", ErrPaymentProvider)
	}
	return cb, nil
}
